// Package state infers a session's lifecycle state from its record
// stream and from wall-clock silence. The machine is fed every
// record in file order and ticked periodically; only this package
// transitions the state.
package state

import (
	"strings"
	"time"

	"github.com/dsaito/agentboard/internal/model"
	"github.com/dsaito/agentboard/internal/parser"
)

const (
	// Silence after a text-only assistant turn before Idle.
	idleTimeout = 10 * time.Second
	// Silence after an assistant tool_use before PermissionWaiting.
	permissionWaitTimeout = 30 * time.Second
	// Silence before a Running or Idle session is considered gone.
	stoppedTimeout = 30 * time.Minute
)

const exitCommandMarker = "<command-name>/exit</command-name>"

// localCommandMarkers flag user records that are local-command
// echoes rather than real user turns.
var localCommandMarkers = []string{
	"<local-command-stdout>",
	"<local-command-caveat>",
	"<command-name>",
}

// Machine holds the per-session state context. Not safe for
// concurrent use; the registry serializes access.
type Machine struct {
	State model.AgentState

	// LastActivityAt and LastEntryTimestamp are milliseconds since
	// epoch, taken from record timestamps.
	LastActivityAt     int64
	LastEntryTimestamp int64

	LastAssistantToolUse  bool
	LastAssistantTextOnly bool

	now func() time.Time
}

// Transition reports the state after processing and whether it
// differs from the state before.
type Transition struct {
	NewState model.AgentState
	Changed  bool
}

// New returns a machine in Stopped with a real clock.
func New() *Machine {
	return NewAt(time.Now)
}

// NewAt returns a machine using the given clock, for tests.
func NewAt(now func() time.Time) *Machine {
	return &Machine{State: model.StateStopped, now: now}
}

func (m *Machine) transition(prev model.AgentState) Transition {
	return Transition{NewState: m.State, Changed: prev != m.State}
}

func (m *Machine) clearFlags() {
	m.LastAssistantToolUse = false
	m.LastAssistantTextOnly = false
}

// ProcessRecord applies one record's event-driven transition.
func (m *Machine) ProcessRecord(rec parser.Record) Transition {
	prev := m.State

	if ts := parser.EpochMillis(rec.RecordTimestamp()); ts != 0 {
		m.LastActivityAt = ts
		m.LastEntryTimestamp = ts
	}

	switch r := rec.(type) {
	case *parser.SystemRecord:
		if r.Subtype == "turn_duration" {
			m.State = model.StateIdle
			m.clearFlags()
		}
		return m.transition(prev)

	case *parser.UserRecord:
		if isExitCommand(r) {
			m.State = model.StateStopped
			m.clearFlags()
			return m.transition(prev)
		}
		if isLocalCommand(r) {
			// Local-command echo, not a user turn.
			return Transition{NewState: m.State, Changed: false}
		}
		m.State = model.StateRunning
		m.clearFlags()
		return m.transition(prev)

	case *parser.AssistantRecord:
		m.State = model.StateRunning
		if r.HasToolUse() {
			m.LastAssistantToolUse = true
			m.LastAssistantTextOnly = false
		} else {
			m.LastAssistantToolUse = false
			m.LastAssistantTextOnly = true
		}
		if hasErrorPattern(rec) {
			m.State = model.StateError
		}
		return m.transition(prev)

	case *parser.ProgressRecord:
		// A streaming tool is executing, not awaiting permission.
		m.State = model.StateRunning
		m.clearFlags()
		return m.transition(prev)

	default:
		return Transition{NewState: m.State, Changed: false}
	}
}

// CheckTimeBased applies at most one time-driven transition, first
// matching rule wins. Run on the periodic tick and immediately
// after each record batch so a freshly loaded file settles without
// waiting for the next tick.
func (m *Machine) CheckTimeBased() Transition {
	prev := m.State
	elapsed := m.now().UnixMilli() - m.LastActivityAt

	if m.State == model.StateRunning && m.LastAssistantTextOnly &&
		elapsed >= idleTimeout.Milliseconds() {
		m.State = model.StateIdle
		m.LastAssistantTextOnly = false
		return m.transition(prev)
	}

	if m.State == model.StateRunning && m.LastAssistantToolUse &&
		elapsed >= permissionWaitTimeout.Milliseconds() {
		m.State = model.StatePermissionWaiting
		return m.transition(prev)
	}

	if m.State == model.StateRunning &&
		elapsed >= stoppedTimeout.Milliseconds() {
		m.State = model.StateStopped
		return m.transition(prev)
	}

	if m.State == model.StateIdle &&
		elapsed >= stoppedTimeout.Milliseconds() {
		m.State = model.StateStopped
		return m.transition(prev)
	}

	return Transition{NewState: m.State, Changed: false}
}

func isExitCommand(r *parser.UserRecord) bool {
	return r.IsText && strings.Contains(r.Text, exitCommandMarker)
}

func isLocalCommand(r *parser.UserRecord) bool {
	if !r.IsText {
		return false
	}
	for _, marker := range localCommandMarkers {
		if strings.Contains(r.Text, marker) {
			return true
		}
	}
	return false
}

// hasErrorPattern reports whether the record carries a failed
// tool_result. Only user records with array content can match;
// assistant records always probe false.
func hasErrorPattern(rec parser.Record) bool {
	user, ok := rec.(*parser.UserRecord)
	if !ok {
		return false
	}
	for _, tr := range user.ToolResults {
		if tr.IsError {
			return true
		}
	}
	return false
}
