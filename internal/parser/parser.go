package parser

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseChunk parses a chunk of newline-delimited JSON. Records are
// parsed only from newline-terminated lines; an unterminated
// trailing fragment is returned as the remainder and must be
// prepended to the next chunk by the caller. Blank and malformed
// lines are skipped.
func ParseChunk(chunk string) (records []Record, remainder string) {
	lines := strings.Split(chunk, "\n")
	for i, line := range lines {
		if i == len(lines)-1 && !strings.HasSuffix(chunk, "\n") {
			remainder = line
			continue
		}
		if rec, ok := ParseLine(line); ok {
			records = append(records, rec)
		}
	}
	return records, remainder
}

// ParseLine parses a single log line. It returns (nil, false) for
// blank lines, invalid JSON, and lines without a type field.
func ParseLine(line string) (Record, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	if !gjson.Valid(trimmed) {
		return nil, false
	}

	typ := gjson.Get(trimmed, "type")
	if !typ.Exists() || typ.Type != gjson.String {
		return nil, false
	}

	switch typ.Str {
	case "user":
		return parseUser(trimmed)
	case "assistant":
		return parseAssistant(trimmed)
	case "system":
		return &SystemRecord{
			Subtype:    gjson.Get(trimmed, "subtype").Str,
			SessionID:  gjson.Get(trimmed, "sessionId").Str,
			Timestamp:  gjson.Get(trimmed, "timestamp").Str,
			DurationMs: gjson.Get(trimmed, "durationMs").Uint(),
		}, true
	case "progress":
		return &ProgressRecord{
			UUID:      gjson.Get(trimmed, "uuid").Str,
			Timestamp: gjson.Get(trimmed, "timestamp").Str,
		}, true
	default:
		return &OtherRecord{}, true
	}
}

func parseUser(line string) (Record, bool) {
	if !gjson.Get(line, "message").Exists() {
		return nil, false
	}

	rec := &UserRecord{
		UUID:      gjson.Get(line, "uuid").Str,
		SessionID: gjson.Get(line, "sessionId").Str,
		Cwd:       gjson.Get(line, "cwd").Str,
		GitBranch: gjson.Get(line, "gitBranch").Str,
		Timestamp: gjson.Get(line, "timestamp").Str,
	}

	content := gjson.Get(line, "message.content")
	switch {
	case content.Type == gjson.String:
		rec.IsText = true
		rec.Text = content.Str
	case content.IsArray():
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").Str != BlockToolResult {
				return true
			}
			rec.ToolResults = append(rec.ToolResults, ToolResult{
				ToolUseID: block.Get("tool_use_id").Str,
				Content:   blockContentString(block.Get("content")),
				IsError:   block.Get("is_error").Bool(),
			})
			return true
		})
	}
	return rec, true
}

func parseAssistant(line string) (Record, bool) {
	if !gjson.Get(line, "message").Exists() {
		return nil, false
	}

	rec := &AssistantRecord{
		UUID:      gjson.Get(line, "uuid").Str,
		SessionID: gjson.Get(line, "sessionId").Str,
		GitBranch: gjson.Get(line, "gitBranch").Str,
		Timestamp: gjson.Get(line, "timestamp").Str,
		Model:     gjson.Get(line, "message.model").Str,
	}

	// A missing content field is an empty block sequence.
	gjson.Get(line, "message.content").ForEach(
		func(_, block gjson.Result) bool {
			if cb, ok := parseBlock(block); ok {
				rec.Blocks = append(rec.Blocks, cb)
			}
			return true
		})

	if usage := gjson.Get(line, "message.usage"); usage.Exists() {
		rec.Usage = &TokenUsage{
			InputTokens:         usage.Get("input_tokens").Uint(),
			OutputTokens:        usage.Get("output_tokens").Uint(),
			CacheReadTokens:     usage.Get("cache_read_input_tokens").Uint(),
			CacheCreationTokens: usage.Get("cache_creation_input_tokens").Uint(),
		}
	}
	return rec, true
}

func parseBlock(block gjson.Result) (ContentBlock, bool) {
	switch block.Get("type").Str {
	case BlockText:
		return ContentBlock{
			Type: BlockText,
			Text: block.Get("text").Str,
		}, true
	case BlockThinking:
		return ContentBlock{
			Type:     BlockThinking,
			Thinking: block.Get("thinking").Str,
		}, true
	case BlockToolUse:
		var input json.RawMessage
		if raw := block.Get("input"); raw.Exists() {
			input = json.RawMessage(raw.Raw)
		}
		return ContentBlock{
			Type:  BlockToolUse,
			ID:    block.Get("id").Str,
			Name:  block.Get("name").Str,
			Input: input,
		}, true
	default:
		// tool_result is not expected inside assistant content;
		// unknown block types are dropped, the record survives.
		return ContentBlock{}, false
	}
}

// blockContentString renders a tool_result content value as a
// string, serializing non-string JSON as-is.
func blockContentString(content gjson.Result) string {
	if !content.Exists() {
		return ""
	}
	if content.Type == gjson.String {
		return content.Str
	}
	return content.Raw
}
