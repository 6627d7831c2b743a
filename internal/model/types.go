// Package model holds the wire types shared between the session
// registry and the HTTP/WebSocket surface. All exported structs
// serialize with camelCase field names; enum values serialize as
// snake_case strings.
package model

import "strings"

// AgentState is the inferred lifecycle state of a session.
type AgentState string

const (
	StateRunning           AgentState = "running"
	StateIdle              AgentState = "idle"
	StatePermissionWaiting AgentState = "permission_waiting"
	StateError             AgentState = "error"
	StateStopped           AgentState = "stopped"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType classifies a user-facing message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeToolUse     MessageType = "tool_use"
	TypeToolResult  MessageType = "tool_result"
	TypeThinking    MessageType = "thinking"
	TypeStateChange MessageType = "state_change"
	TypeError       MessageType = "error"
)

// Usage accumulates token counts and estimated cost for a session.
// Token counts only grow; cost is a running USD sum.
type Usage struct {
	InputTokens         uint64  `json:"inputTokens"`
	OutputTokens        uint64  `json:"outputTokens"`
	CacheReadTokens     uint64  `json:"cacheReadTokens"`
	CacheCreationTokens uint64  `json:"cacheCreationTokens"`
	EstimatedCost       float64 `json:"estimatedCost"`
}

// GitStatus holds the branch and uncommitted-diff size for a
// session's working directory.
type GitStatus struct {
	Branch    string `json:"branch"`
	Additions uint64 `json:"additions"`
	Deletions uint64 `json:"deletions"`
}

// SessionSummary is the externally visible snapshot of a session.
// Timestamps are RFC 3339 strings.
type SessionSummary struct {
	SessionID        string     `json:"sessionId"`
	Provider         string     `json:"provider"`
	State            AgentState `json:"state"`
	ProjectPath      string     `json:"projectPath"`
	ProjectName      string     `json:"projectName"`
	WorkingDirectory string     `json:"workingDirectory"`
	CurrentTask      string     `json:"currentTask"`
	Model            string     `json:"model"`
	LastActivityAt   string     `json:"lastActivityAt"`
	StartedAt        string     `json:"startedAt"`
	CumulativeUsage  Usage      `json:"cumulativeUsage"`
	GitStatus        GitStatus  `json:"gitStatus"`
}

// Message is a single user-facing message projected from the raw
// record stream.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Timestamp string         `json:"timestamp"`
	Role      Role           `json:"role"`
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionDetail is a summary plus the retained message window.
type SessionDetail struct {
	SessionSummary
	Messages []Message `json:"messages"`
}

// SearchScope names a field set that search matches against.
type SearchScope string

const (
	ScopeProjectName      SearchScope = "project_name"
	ScopeCurrentTask      SearchScope = "current_task"
	ScopeWorkingDirectory SearchScope = "working_directory"
	ScopeContent          SearchScope = "content"
)

// AllScopes is the default scope set, in match order.
var AllScopes = []SearchScope{
	ScopeProjectName,
	ScopeCurrentTask,
	ScopeWorkingDirectory,
	ScopeContent,
}

// ParseScopes converts a comma-separated scope list into scopes,
// dropping unrecognised names. An empty result means the caller
// should fall back to AllScopes.
func ParseScopes(s string) []SearchScope {
	var scopes []SearchScope
	for _, part := range strings.Split(s, ",") {
		switch scope := SearchScope(strings.TrimSpace(part)); scope {
		case ScopeProjectName, ScopeCurrentTask,
			ScopeWorkingDirectory, ScopeContent:
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// SearchMatch is one snippet-level hit inside a session.
type SearchMatch struct {
	Content     string      `json:"content"`
	Scope       SearchScope `json:"scope"`
	MessageRole Role        `json:"messageRole"`
	MessageType MessageType `json:"messageType"`
	Timestamp   string      `json:"timestamp"`
}

// SessionSearchResult pairs a session with its matches. MatchCount
// is the total before Matches was truncated to three.
type SessionSearchResult struct {
	Session    SessionSummary `json:"session"`
	MatchCount int            `json:"matchCount"`
	Matches    []SearchMatch  `json:"matches"`
}

// SearchResponse is the outer search payload.
type SearchResponse struct {
	Query         string                `json:"query"`
	TotalSessions int                   `json:"totalSessions"`
	Results       []SessionSearchResult `json:"results"`
}
