// Package session owns the tracked sessions: it maps raw records
// into user-facing messages, folds usage and state, serves snapshot
// queries, and publishes domain events.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dsaito/agentboard/internal/model"
	"github.com/dsaito/agentboard/internal/parser"
)

const (
	userTextLimit    = 500
	toolResultLimit  = 300
	currentTaskLimit = 200
)

var messageCounter atomic.Uint64

// nextMessageID mints a process-wide monotonically increasing id
// for records that carry no uuid.
func nextMessageID() string {
	return fmt.Sprintf("msg_%d", messageCounter.Add(1))
}

func messageID(uuid string) string {
	if uuid != "" {
		return uuid
	}
	return nextMessageID()
}

// truncate cuts s at limit bytes on a UTF-8 boundary, appending
// "..." when anything was dropped.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !isRuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// MapRecord projects one raw record into zero or more messages.
func MapRecord(rec parser.Record, sessionID string) []model.Message {
	switch r := rec.(type) {
	case *parser.UserRecord:
		return mapUser(r)
	case *parser.AssistantRecord:
		return mapAssistant(r)
	case *parser.SystemRecord:
		return mapSystem(r, sessionID)
	default:
		return nil
	}
}

func mapUser(r *parser.UserRecord) []model.Message {
	if r.IsText {
		return []model.Message{{
			ID:        messageID(r.UUID),
			SessionID: r.SessionID,
			Timestamp: r.Timestamp,
			Role:      model.RoleUser,
			Type:      model.TypeText,
			Content:   truncate(r.Text, userTextLimit),
		}}
	}

	var msgs []model.Message
	for _, tr := range r.ToolResults {
		msgs = append(msgs, model.Message{
			ID:        messageID(r.UUID),
			SessionID: r.SessionID,
			Timestamp: r.Timestamp,
			Role:      model.RoleUser,
			Type:      model.TypeToolResult,
			Content:   truncate(tr.Content, toolResultLimit),
			Metadata: map[string]any{
				"toolUseId": tr.ToolUseID,
				"isError":   tr.IsError,
			},
		})
	}
	return msgs
}

func mapAssistant(r *parser.AssistantRecord) []model.Message {
	var msgs []model.Message
	for _, block := range r.Blocks {
		switch block.Type {
		case parser.BlockText:
			msgs = append(msgs, model.Message{
				ID:        messageID(r.UUID),
				SessionID: r.SessionID,
				Timestamp: r.Timestamp,
				Role:      model.RoleAssistant,
				Type:      model.TypeText,
				Content:   block.Text,
			})
		case parser.BlockToolUse:
			var input any
			if len(block.Input) > 0 {
				input = json.RawMessage(block.Input)
			}
			msgs = append(msgs, model.Message{
				ID:        messageID(r.UUID),
				SessionID: r.SessionID,
				Timestamp: r.Timestamp,
				Role:      model.RoleAssistant,
				Type:      model.TypeToolUse,
				Content:   block.Name,
				Metadata: map[string]any{
					"toolName": block.Name,
					"toolId":   block.ID,
					"input":    input,
				},
			})
		}
		// Thinking blocks are dropped.
	}
	return msgs
}

func mapSystem(r *parser.SystemRecord, sessionID string) []model.Message {
	if r.Subtype != "turn_duration" {
		return nil
	}
	ts := r.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return []model.Message{{
		ID:        nextMessageID(),
		SessionID: sessionID,
		Timestamp: ts,
		Role:      model.RoleSystem,
		Type:      model.TypeStateChange,
		Content:   fmt.Sprintf("Turn completed (%dms)", r.DurationMs),
		Metadata:  map[string]any{"durationMs": r.DurationMs},
	}}
}

// systemTags are markup the agent injects into user turns. Used
// only when extracting the current task from the first user turn.
var systemTags = []string{
	"local-command-caveat",
	"local-command-stdout",
	"command-name",
	"command-message",
	"command-args",
	"system-reminder",
}

// StripSystemTags removes every balanced occurrence of the known
// system tags along with their content. Unbalanced occurrences are
// preserved: they are assumed to be the user mentioning the tag,
// not real markup. The operation is idempotent.
func StripSystemTags(text string) string {
	result := text
	for _, tag := range systemTags {
		open := "<" + tag
		close := "</" + tag + ">"
		for {
			start := strings.Index(result, open)
			if start < 0 {
				break
			}
			endOffset := strings.Index(result[start:], close)
			if endOffset < 0 {
				break
			}
			end := start + endOffset + len(close)
			result = result[:start] + result[end:]
		}
	}
	return strings.TrimSpace(result)
}

// ExtractCurrentTask derives the short task summary from the first
// user turn's text, scrubbed of system markup.
func ExtractCurrentTask(r *parser.UserRecord) string {
	if !r.IsText {
		return ""
	}
	cleaned := StripSystemTags(r.Text)
	if cleaned == "" {
		return ""
	}
	return truncate(cleaned, currentTaskLimit)
}
