package model

// Event is a server-to-client envelope pushed over the streaming
// channel. Each concrete event carries its own "type" tag; the tag
// values and payload field names are part of the wire contract.
type Event interface {
	EventType() string
}

// Server event tag values.
const (
	EventSessionsInit     = "sessions:init"
	EventSessionFound     = "session:discovered"
	EventSessionRemoved   = "session:removed"
	EventStateChanged     = "session:state_changed"
	EventNewMessage       = "session:new_message"
	EventMessagesInit     = "session:messages_init"
	EventUsageUpdated     = "session:usage_updated"
	EventGitStatusUpdated = "session:git_status_updated"
)

// SessionsInit is the one-shot snapshot sent to a subscriber on
// attach.
type SessionsInit struct {
	Type     string           `json:"type"`
	Sessions []SessionSummary `json:"sessions"`
}

func NewSessionsInit(sessions []SessionSummary) SessionsInit {
	return SessionsInit{Type: EventSessionsInit, Sessions: sessions}
}

func (SessionsInit) EventType() string { return EventSessionsInit }

// SessionDiscovered announces a session becoming visible (its model
// was learned from the first assistant record).
type SessionDiscovered struct {
	Type    string         `json:"type"`
	Session SessionSummary `json:"session"`
}

func NewSessionDiscovered(s SessionSummary) SessionDiscovered {
	return SessionDiscovered{Type: EventSessionFound, Session: s}
}

func (SessionDiscovered) EventType() string { return EventSessionFound }

// SessionRemoved announces that a session's source log is gone.
type SessionRemoved struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func NewSessionRemoved(id string) SessionRemoved {
	return SessionRemoved{Type: EventSessionRemoved, SessionID: id}
}

func (SessionRemoved) EventType() string { return EventSessionRemoved }

// StateChanged carries a lifecycle transition plus the full session
// snapshot after the transition.
type StateChanged struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Previous  AgentState     `json:"previous"`
	Current   AgentState     `json:"current"`
	Session   SessionSummary `json:"session"`
}

func NewStateChanged(
	id string, prev, cur AgentState, s SessionSummary,
) StateChanged {
	return StateChanged{
		Type:      EventStateChanged,
		SessionID: id,
		Previous:  prev,
		Current:   cur,
		Session:   s,
	}
}

func (StateChanged) EventType() string { return EventStateChanged }

// NewMessage carries one mapped message. It travels on the message
// stream, not the broadcast channel, and is delivered only to
// subscribers of its session.
type NewMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

func NewNewMessage(id string, msg Message) NewMessage {
	return NewMessage{Type: EventNewMessage, SessionID: id, Message: msg}
}

func (NewMessage) EventType() string { return EventNewMessage }

// MessagesInit is the per-session message snapshot sent on
// subscribe.
type MessagesInit struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}

func NewMessagesInit(id string, msgs []Message) MessagesInit {
	return MessagesInit{Type: EventMessagesInit, SessionID: id, Messages: msgs}
}

func (MessagesInit) EventType() string { return EventMessagesInit }

// UsageUpdated carries the cumulative usage after folding an
// assistant record.
type UsageUpdated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Usage     Usage  `json:"usage"`
}

func NewUsageUpdated(id string, u Usage) UsageUpdated {
	return UsageUpdated{Type: EventUsageUpdated, SessionID: id, Usage: u}
}

func (UsageUpdated) EventType() string { return EventUsageUpdated }

// GitStatusUpdated carries a changed (additions, deletions) pair.
type GitStatusUpdated struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	GitStatus GitStatus `json:"gitStatus"`
}

func NewGitStatusUpdated(id string, gs GitStatus) GitStatusUpdated {
	return GitStatusUpdated{Type: EventGitStatusUpdated, SessionID: id, GitStatus: gs}
}

func (GitStatusUpdated) EventType() string { return EventGitStatusUpdated }

// ClientEvent is a client-to-server control frame.
type ClientEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Client control frame tag values.
const (
	ClientSubscribe   = "subscribe:session"
	ClientUnsubscribe = "unsubscribe:session"
)
