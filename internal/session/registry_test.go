package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsaito/agentboard/internal/discovery"
	"github.com/dsaito/agentboard/internal/model"
	"github.com/dsaito/agentboard/internal/parser"
	"github.com/dsaito/agentboard/internal/state"
)

const testClockTS = "2025-01-01T12:00:00Z"

type eventLog struct {
	events []model.Event
}

func (l *eventLog) publish(ev model.Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []string {
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.EventType()
	}
	return out
}

type fakeTail struct {
	started bool
	stopped bool
}

func (f *fakeTail) Start() { f.started = true }
func (f *fakeTail) Stop()  { f.stopped = true }

// newTestRegistry pins the clock to the record timestamps so the
// post-batch settle does not age sessions out.
func newTestRegistry(t *testing.T) (*Registry, *eventLog) {
	t.Helper()
	log := &eventLog{}
	r := NewRegistry(log.publish)
	fixed, err := time.Parse(time.RFC3339, testClockTS)
	require.NoError(t, err)
	r.now = func() time.Time { return fixed }
	r.newTailer = func(string, chan<- []parser.Record) tailHandle {
		return &fakeTail{}
	}
	return r, log
}

func found(id, projectPath string) discovery.Found {
	return discovery.Found{
		SessionID:   id,
		LogFile:     "/tmp/" + id + ".jsonl",
		ProjectPath: projectPath,
		ProjectName: projectPath[len(projectPath)-4:],
	}
}

func userRec(text string) *parser.UserRecord {
	return &parser.UserRecord{
		IsText: true, Text: text, Timestamp: testClockTS,
	}
}

func assistantRec() *parser.AssistantRecord {
	return &parser.AssistantRecord{
		Model:     "claude-sonnet-4-20250514",
		Timestamp: testClockTS,
		Blocks:    []parser.ContentBlock{{Type: parser.BlockText, Text: "ok"}},
		Usage:     &parser.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func TestNoEventsBeforeEmitted(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))

	r.HandleBatch("s1", []parser.Record{
		userRec("hello"), userRec("more"), &parser.ProgressRecord{},
	})

	assert.Empty(t, log.events)
	assert.Empty(t, r.Sessions())
	_, ok := r.Detail("s1")
	assert.False(t, ok)
}

func TestSessionDiscoveredPrecedesAllOtherEvents(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))

	r.HandleBatch("s1", []parser.Record{userRec("hello"), assistantRec()})

	types := log.types()
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventSessionFound, types[0])

	// Exactly one SessionDiscovered, ever.
	count := 0
	for _, typ := range types {
		if typ == model.EventSessionFound {
			count++
		}
	}
	assert.Equal(t, 1, count)

	r.HandleBatch("s1", []parser.Record{assistantRec()})
	count = 0
	for _, typ := range log.types() {
		if typ == model.EventSessionFound {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestModelAdoptionAndUsageFold(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{assistantRec(), assistantRec()})

	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "claude-code", s.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", s.Model)
	assert.Equal(t, uint64(200), s.CumulativeUsage.InputTokens)
	assert.Equal(t, uint64(100), s.CumulativeUsage.OutputTokens)
	assert.Greater(t, s.CumulativeUsage.EstimatedCost, 0.0)

	var usageEvents int
	for _, typ := range log.types() {
		if typ == model.EventUsageUpdated {
			usageEvents++
		}
	}
	assert.Equal(t, 2, usageEvents)
}

func TestMessageWindowTrimsOldest(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{assistantRec()})

	batch := make([]parser.Record, 0, 520)
	for i := 1; i <= 520; i++ {
		batch = append(batch, userRec(fmt.Sprintf("user %d", i)))
	}
	r.HandleBatch("s1", batch)

	msgs, ok := r.Messages("s1")
	require.True(t, ok)
	// 1 assistant + 520 user messages; the trim fires at 501 and
	// keeps the most recent 400, then 20 more arrive.
	require.Len(t, msgs, 420)
	assert.Equal(t, "user 101", msgs[0].Content)
	assert.Equal(t, "user 520", msgs[len(msgs)-1].Content)
	assert.LessOrEqual(t, len(msgs), 500)
}

func TestForceStopOnNewSessionSameProject(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{userRec("go"), assistantRec()})

	require.Len(t, r.Sessions(), 1)
	require.Equal(t, model.StateRunning, r.Sessions()[0].State)
	before := len(log.events)

	r.OnFound(found("s2", "/home/u/proj"))

	require.Greater(t, len(log.events), before)
	ev, ok := log.events[before].(model.StateChanged)
	require.True(t, ok)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, model.StateRunning, ev.Previous)
	assert.Equal(t, model.StateStopped, ev.Current)
}

func TestNewSessionOtherProjectLeavesOthersAlone(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{userRec("go"), assistantRec()})
	before := len(log.events)

	r.OnFound(found("s2", "/home/u/other"))

	assert.Len(t, log.events, before)
	assert.Equal(t, model.StateRunning, r.Sessions()[0].State)
}

func TestBranchAdoption(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))

	rec := userRec("hi")
	rec.GitBranch = "main"
	r.HandleBatch("s1", []parser.Record{rec, assistantRec()})
	assert.Equal(t, "main", r.Sessions()[0].GitStatus.Branch)

	// Detached HEAD and empty are ignored.
	head := userRec("next")
	head.GitBranch = "HEAD"
	empty := userRec("more")
	r.HandleBatch("s1", []parser.Record{head, empty})
	assert.Equal(t, "main", r.Sessions()[0].GitStatus.Branch)
}

func TestCurrentTaskFromFirstUserTurn(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{
		userRec("Fix the parser bug"),
		assistantRec(),
		userRec("now do something else"),
	})
	assert.Equal(t, "Fix the parser bug", r.Sessions()[0].CurrentTask)
}

func TestWorkingDirectoryFromCwd(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))

	rec := userRec("hi")
	rec.Cwd = "/home/u/proj/sub"
	r.HandleBatch("s1", []parser.Record{rec, assistantRec()})
	assert.Equal(t, "/home/u/proj/sub", r.Sessions()[0].WorkingDirectory)
}

func TestWorkingDirectorySeededFromDiscovery(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{assistantRec()})

	s := r.Sessions()[0]
	assert.Equal(t, "/home/u/proj", s.WorkingDirectory)
	assert.Equal(t, "/home/u/proj", s.ProjectPath)
	assert.Equal(t, "proj", s.ProjectName)
}

func TestCwdUpdatesProjectMetadata(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))

	rec := userRec("hi")
	rec.Cwd = "/home/u/widgets/api"
	r.HandleBatch("s1", []parser.Record{rec, assistantRec()})

	s := r.Sessions()[0]
	assert.Equal(t, "/home/u/widgets/api", s.WorkingDirectory)
	assert.Equal(t, "/home/u/widgets/api", s.ProjectPath)
	assert.Equal(t, "api", s.ProjectName)
}

func TestForceStopGroupsByDiscoveryPath(t *testing.T) {
	// A cwd diverging from the discovery path must not break
	// same-project grouping.
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	rec := userRec("go")
	rec.Cwd = "/home/u/elsewhere"
	r.HandleBatch("s1", []parser.Record{rec, assistantRec()})
	before := len(log.events)

	r.OnFound(found("s2", "/home/u/proj"))

	require.Greater(t, len(log.events), before)
	ev, ok := log.events[before].(model.StateChanged)
	require.True(t, ok)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, model.StateStopped, ev.Current)
}

func TestOnRemoved(t *testing.T) {
	r, log := newTestRegistry(t)
	var tail *fakeTail
	r.newTailer = func(string, chan<- []parser.Record) tailHandle {
		tail = &fakeTail{}
		return tail
	}
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{assistantRec()})

	r.OnRemoved("s1")

	assert.True(t, tail.stopped)
	assert.Empty(t, r.Sessions())
	last := log.events[len(log.events)-1]
	removed, ok := last.(model.SessionRemoved)
	require.True(t, ok)
	assert.Equal(t, "s1", removed.SessionID)

	// Unknown ids are a no-op.
	r.OnRemoved("nope")
}

func TestUnemittedRemovalIsSilent(t *testing.T) {
	r, log := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.OnRemoved("s1")
	assert.Empty(t, log.events)
}

func TestDetailAndMessages(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.OnFound(found("s1", "/home/u/proj"))
	r.HandleBatch("s1", []parser.Record{userRec("hello"), assistantRec()})

	detail, ok := r.Detail("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", detail.SessionID)
	assert.Len(t, detail.Messages, 2)

	_, ok = r.Detail("absent")
	assert.False(t, ok)
}

func TestSearchMatchesTaskAndContent(t *testing.T) {
	r, _ := newTestRegistry(t)
	clock := func() time.Time {
		fixed, _ := time.Parse(time.RFC3339, testClockTS)
		return fixed
	}
	r.sessions["a"] = &tracked{
		id: "a", emitted: true, model: "claude-sonnet-4",
		currentTask:    "Fix the parser bug",
		lastActivityAt: "2025-01-01T13:00:00Z",
		machine:        state.NewAt(clock),
	}
	r.sessions["b"] = &tracked{
		id: "b", emitted: true, model: "claude-sonnet-4",
		lastActivityAt: "2025-01-01T12:30:00Z",
		machine:        state.NewAt(clock),
		messages: []model.Message{{
			ID: "m1", SessionID: "b", Role: model.RoleAssistant,
			Type: model.TypeText, Content: "rewrote the parser internals",
		}},
	}

	resp := r.Search("parser", nil)
	assert.Equal(t, "parser", resp.Query)
	assert.Equal(t, 2, resp.TotalSessions)
	require.Len(t, resp.Results, 2)

	// Equal match counts keep the most-recently-active-first order.
	assert.Equal(t, "a", resp.Results[0].Session.SessionID)
	assert.Equal(t, 1, resp.Results[0].MatchCount)
	assert.Equal(t, model.ScopeCurrentTask, resp.Results[0].Matches[0].Scope)
	assert.Equal(t, "b", resp.Results[1].Session.SessionID)
	assert.Equal(t, 1, resp.Results[1].MatchCount)
	assert.Equal(t, model.ScopeContent, resp.Results[1].Matches[0].Scope)
}

func TestSearchMatchCountExceedsTruncatedMatches(t *testing.T) {
	r, _ := newTestRegistry(t)
	clock := func() time.Time { return time.Now() }
	msgs := make([]model.Message, 5)
	for i := range msgs {
		msgs[i] = model.Message{
			ID: fmt.Sprintf("m%d", i), Role: model.RoleUser,
			Type: model.TypeText, Content: fmt.Sprintf("parser pass %d", i),
		}
	}
	r.sessions["a"] = &tracked{
		id: "a", emitted: true, model: "m",
		machine: state.NewAt(clock), messages: msgs,
	}

	resp := r.Search("parser", []model.SearchScope{model.ScopeContent})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 5, resp.Results[0].MatchCount)
	assert.Len(t, resp.Results[0].Matches, 3)
}

func TestSearchWorkingDirectoryAlsoMatchesProjectPath(t *testing.T) {
	r, _ := newTestRegistry(t)
	clock := func() time.Time { return time.Now() }
	r.sessions["a"] = &tracked{
		id: "a", emitted: true, model: "m",
		projectPath: "/home/u/widgets",
		machine:     state.NewAt(clock),
	}

	resp := r.Search("widgets",
		[]model.SearchScope{model.ScopeWorkingDirectory})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].MatchCount)
}

func TestSnippetWindowing(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" + // 50
		"needle" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" // 50
	got := snippet(long, 50, len("needle"))
	assert.Equal(t,
		"..."+long[10:50+len("needle")+40]+"...", got)

	// Short strings come back whole, unpadded.
	assert.Equal(t, "needle here", snippet("needle here", 0, 6))
}

func TestSnippetFoldedIndexPastEnd(t *testing.T) {
	// "Ⱥ" widens from two bytes to three when lowercased, so folded
	// match offsets can run past the original string.
	s := strings.Repeat("Ⱥ", 50) + "x"
	idx := indexFold(s, "x")
	require.Greater(t, idx, len(s))

	got := snippet(s, idx, 1)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "x"))
}

func TestSearchFoldWideningContent(t *testing.T) {
	r, _ := newTestRegistry(t)
	clock := func() time.Time { return time.Now() }
	r.sessions["a"] = &tracked{
		id: "a", emitted: true, model: "m",
		machine: state.NewAt(clock),
		messages: []model.Message{{
			ID: "m1", SessionID: "a", Role: model.RoleUser,
			Type:    model.TypeText,
			Content: strings.Repeat("Ⱥ", 50) + "x",
		}},
	}

	resp := r.Search("x", []model.SearchScope{model.ScopeContent})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].MatchCount)
	assert.True(t, strings.HasSuffix(resp.Results[0].Matches[0].Content, "x"))
}

func TestGitProbeCoversAllCandidates(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, id := range []string{"s1", "s2"} {
		r.OnFound(found(id, "/home/u/"+id))
		r.HandleBatch(id, []parser.Record{assistantRec()})
		r.sessions[id].machine.State = model.StateIdle
		r.sessions[id].workingDirectory = t.TempDir()
	}

	r.probeGitStatus(context.Background())

	for _, id := range []string{"s1", "s2"} {
		assert.False(t, r.sessions[id].lastGitProbe.IsZero(), id)
	}

	// A second pass inside the spacing window selects nothing.
	first := r.sessions["s1"].lastGitProbe
	r.probeGitStatus(context.Background())
	assert.Equal(t, first, r.sessions["s1"].lastGitProbe)
}

func TestStopStopsTailers(t *testing.T) {
	r, _ := newTestRegistry(t)
	var tails []*fakeTail
	r.newTailer = func(string, chan<- []parser.Record) tailHandle {
		tail := &fakeTail{}
		tails = append(tails, tail)
		return tail
	}
	r.Start()
	r.OnFound(found("s1", "/home/u/proj"))
	r.OnFound(found("s2", "/home/u/other"))

	r.Stop()
	require.Len(t, tails, 2)
	for _, tail := range tails {
		assert.True(t, tail.stopped)
	}
}
