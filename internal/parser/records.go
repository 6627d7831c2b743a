// Package parser converts chunks of a Claude Code JSONL session
// log into typed records. Decoding is deliberately tolerant:
// unknown fields are ignored, missing optional fields default to
// zero values, and malformed lines are dropped without aborting
// the surrounding batch.
package parser

import (
	"encoding/json"
	"time"
)

// Record is one parsed line of the log. Concrete types are
// *UserRecord, *AssistantRecord, *SystemRecord, *ProgressRecord
// and *OtherRecord.
type Record interface {
	// RecordTimestamp returns the raw RFC 3339 timestamp string,
	// or "" when the line carried none.
	RecordTimestamp() string
}

// Content block type tags as they appear in the log.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of an assistant record's content
// array. Only the fields relevant to its Type are populated.
type ContentBlock struct {
	Type string

	// text
	Text string

	// thinking
	Thinking string

	// tool_use
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is a tool_result element of a user record's content
// array. Content holds the result as a string; non-string JSON
// content is kept in its serialized form.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// UserRecord is a type=user line. Content is either a plain string
// (IsText) or an array of tool results.
type UserRecord struct {
	UUID        string
	SessionID   string
	Cwd         string
	GitBranch   string
	Timestamp   string
	IsText      bool
	Text        string
	ToolResults []ToolResult
}

func (r *UserRecord) RecordTimestamp() string { return r.Timestamp }

// TokenUsage is the usage object of an assistant record.
type TokenUsage struct {
	InputTokens         uint64
	OutputTokens        uint64
	CacheReadTokens     uint64
	CacheCreationTokens uint64
}

// AssistantRecord is a type=assistant line.
type AssistantRecord struct {
	UUID      string
	SessionID string
	GitBranch string
	Timestamp string
	Model     string
	Blocks    []ContentBlock
	Usage     *TokenUsage
}

func (r *AssistantRecord) RecordTimestamp() string { return r.Timestamp }

// HasToolUse reports whether any content block is a tool_use.
func (r *AssistantRecord) HasToolUse() bool {
	for _, b := range r.Blocks {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// SystemRecord is a type=system line (e.g. subtype=turn_duration).
type SystemRecord struct {
	Subtype    string
	SessionID  string
	Timestamp  string
	DurationMs uint64
}

func (r *SystemRecord) RecordTimestamp() string { return r.Timestamp }

// ProgressRecord is a type=progress line emitted while a tool is
// executing.
type ProgressRecord struct {
	UUID      string
	Timestamp string
}

func (r *ProgressRecord) RecordTimestamp() string { return r.Timestamp }

// OtherRecord is any line with an unrecognized type
// (file-history-snapshot, queue-operation, ...). It is preserved
// in batch order but carries no data.
type OtherRecord struct{}

func (r *OtherRecord) RecordTimestamp() string { return "" }

// EpochMillis parses an RFC 3339 timestamp into milliseconds since
// epoch, returning 0 when the string is empty or unparsable.
func EpochMillis(ts string) int64 {
	if ts == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
