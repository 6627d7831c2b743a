// Package testjsonl provides shared JSONL fixture builders for
// Claude Code session log lines. Used by the parser and tailer test
// packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// UserText returns a type=user line with string content.
func UserText(text, timestamp string, cwd ...string) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":    "user",
			"content": text,
		},
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// UserToolResult returns a type=user line whose content is a single
// tool_result block.
func UserToolResult(toolUseID, content string, isError bool, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"role": "user",
			"content": []any{map[string]any{
				"type":        "tool_result",
				"tool_use_id": toolUseID,
				"content":     content,
				"is_error":    isError,
			}},
		},
	})
}

// AssistantText returns a type=assistant line with one text block
// and a usage object.
func AssistantText(model, text, timestamp string, inputTokens, outputTokens uint64) string {
	return mustMarshal(map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":  "assistant",
			"model": model,
			"content": []any{map[string]any{
				"type": "text",
				"text": text,
			}},
			"usage": map[string]any{
				"input_tokens":  inputTokens,
				"output_tokens": outputTokens,
			},
		},
	})
}

// AssistantToolUse returns a type=assistant line with one tool_use
// block.
func AssistantToolUse(model, toolID, toolName, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":  "assistant",
			"model": model,
			"content": []any{map[string]any{
				"type":  "tool_use",
				"id":    toolID,
				"name":  toolName,
				"input": map[string]any{"command": "ls"},
			}},
		},
	})
}

// SystemTurnDuration returns a type=system turn_duration line.
func SystemTurnDuration(durationMs uint64, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":       "system",
		"subtype":    "turn_duration",
		"timestamp":  timestamp,
		"durationMs": durationMs,
	})
}

// Lines joins JSONL lines with trailing newlines.
func Lines(lines ...string) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
