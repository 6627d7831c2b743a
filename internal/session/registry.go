package session

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dsaito/agentboard/internal/cost"
	"github.com/dsaito/agentboard/internal/discovery"
	"github.com/dsaito/agentboard/internal/model"
	"github.com/dsaito/agentboard/internal/parser"
	"github.com/dsaito/agentboard/internal/state"
	"github.com/dsaito/agentboard/internal/tailer"
)

const (
	// Provider is the wire identifier for the agent whose logs this
	// backend understands.
	Provider = "claude-code"

	tickInterval    = 3 * time.Second
	gitProbeSpacing = 30 * time.Second

	// The retained message window: trim to lowWater once the count
	// exceeds maxMessages, dropping the oldest in one cut.
	maxMessages      = 500
	lowWaterMessages = 400

	// Capacity of the tailer→registry batch channel. Batches are
	// consumed quickly (short in-memory work), so a modest buffer
	// suffices; a full channel briefly backpressures the tailer.
	batchBuffer = 64

	unknownModel = "unknown"
)

// tailHandle is the slice of a Tailer the registry drives. Tests
// substitute a fake.
type tailHandle interface {
	Start()
	Stop()
}

// tracked is the registry's per-session record. All fields are
// guarded by the registry lock except the tailer plumbing, which is
// touched only on add and remove.
type tracked struct {
	id      string
	logFile string

	// The path decoded from the log directory name. Stays stable and
	// groups sessions by project; projectPath below follows the live
	// cwd from the records.
	discoveryProjectPath string

	projectPath string
	projectName string

	workingDirectory string
	gitBranch        string
	currentTask      string
	model            string
	emitted          bool

	startedAt      string
	lastActivityAt string

	machine  *state.Machine
	usage    model.Usage
	messages []model.Message

	gitAdditions uint64
	gitDeletions uint64
	lastGitProbe time.Time

	tail     tailHandle
	batches  chan []parser.Record
	consumed chan struct{}
}

// Registry is the single owner of all tracked sessions. It ingests
// record batches, derives state, and publishes domain events via
// the injected publish function.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*tracked

	publish   func(model.Event)
	now       func() time.Time
	newTailer func(path string, out chan<- []parser.Record) tailHandle

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry publishing events through publish.
func NewRegistry(publish func(model.Event)) *Registry {
	return &Registry{
		sessions: make(map[string]*tracked),
		publish:  publish,
		now:      time.Now,
		newTailer: func(path string, out chan<- []parser.Record) tailHandle {
			return tailer.New(path, out)
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start spawns the periodic tick that drives time-based state
// transitions and the git status probe.
func (r *Registry) Start() {
	go r.tickLoop()
}

// Stop halts the tick and every tailer, then waits for the
// consumers to drain.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		all := make([]*tracked, 0, len(r.sessions))
		for _, t := range r.sessions {
			all = append(all, t)
		}
		r.mu.Unlock()

		for _, t := range all {
			r.stopTailer(t)
		}
	})
}

func (r *Registry) tickLoop() {
	defer close(r.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.checkTimeBased()
			// Probes shell out to git; keep them off the tick so a
			// slow repository cannot delay time-based transitions.
			go r.probeGitStatus(context.Background())
		}
	}
}

// OnFound begins tracking a discovered session: any still-active
// session of the same project is force-stopped (the agent started a
// new session there; the old log will never grow again), then a
// tailer is attached to the new log.
func (r *Registry) OnFound(f discovery.Found) {
	batches := make(chan []parser.Record, batchBuffer)

	t := &tracked{
		id:                   f.SessionID,
		logFile:              f.LogFile,
		discoveryProjectPath: f.ProjectPath,
		projectPath:          f.ProjectPath,
		projectName:          f.ProjectName,
		// Seeded so the git probe works before any cwd record.
		workingDirectory: f.ProjectPath,
		model:            unknownModel,
		machine:          state.NewAt(r.now),
		tail:             r.newTailer(f.LogFile, batches),
		batches:          batches,
		consumed:         make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.sessions[f.SessionID]; exists {
		r.mu.Unlock()
		return
	}
	for _, other := range r.sessions {
		if other.discoveryProjectPath != f.ProjectPath || other.id == f.SessionID {
			continue
		}
		if prev := other.machine.State; prev != model.StateStopped {
			other.machine.State = model.StateStopped
			if other.emitted {
				r.publish(model.NewStateChanged(
					other.id, prev, model.StateStopped, r.summaryLocked(other)))
			}
		}
	}
	r.sessions[f.SessionID] = t
	r.mu.Unlock()

	go r.consume(t)
	t.tail.Start()
	log.Printf("registry: tracking session %s (%s)", f.SessionID, f.ProjectPath)
}

// OnRemoved stops tracking a session whose log file disappeared.
func (r *Registry) OnRemoved(sessionID string) {
	r.mu.Lock()
	t, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	emitted := ok && t.emitted
	r.mu.Unlock()
	if !ok {
		return
	}

	r.stopTailer(t)
	if emitted {
		r.publish(model.NewSessionRemoved(sessionID))
	}
	log.Printf("registry: dropped session %s", sessionID)
}

func (r *Registry) stopTailer(t *tracked) {
	t.tail.Stop()
	close(t.batches)
	<-t.consumed
}

// consume drains one session's batch channel until it closes.
func (r *Registry) consume(t *tracked) {
	defer close(t.consumed)
	for batch := range t.batches {
		r.HandleBatch(t.id, batch)
	}
}

// HandleBatch ingests one record batch for a session, in file
// order, then settles time-based state immediately so a freshly
// loaded stale file does not wait for the next tick.
func (r *Registry) HandleBatch(sessionID string, records []parser.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for _, rec := range records {
		r.handleRecord(t, rec)
	}
	r.settleLocked(t)
}

// handleRecord applies one record: metadata, model adoption and the
// emitted gate, usage, state, messages. Event order per record
// follows this sequence.
func (r *Registry) handleRecord(t *tracked, rec parser.Record) {
	if ts := rec.RecordTimestamp(); ts != "" {
		if t.startedAt == "" {
			t.startedAt = ts
		}
		t.lastActivityAt = ts
	}

	switch rec := rec.(type) {
	case *parser.UserRecord:
		if rec.Cwd != "" {
			t.workingDirectory = rec.Cwd
			t.projectPath = rec.Cwd
			if name := rec.Cwd[strings.LastIndex(rec.Cwd, "/")+1:]; name != "" {
				t.projectName = name
			}
		}
		r.updateBranch(t, rec.GitBranch)
		if t.currentTask == "" {
			t.currentTask = ExtractCurrentTask(rec)
		}

	case *parser.AssistantRecord:
		r.updateBranch(t, rec.GitBranch)
		if rec.Model != "" && t.model == unknownModel {
			t.model = rec.Model
			if !t.emitted {
				t.emitted = true
				r.publish(model.NewSessionDiscovered(r.summaryLocked(t)))
			}
		}
		if u := rec.Usage; u != nil {
			t.usage = cost.AddUsage(t.usage, t.model,
				u.InputTokens, u.OutputTokens,
				u.CacheReadTokens, u.CacheCreationTokens)
			if t.emitted {
				r.publish(model.NewUsageUpdated(t.id, t.usage))
			}
		}
	}

	prev := t.machine.State
	if tr := t.machine.ProcessRecord(rec); tr.Changed && t.emitted {
		r.publish(model.NewStateChanged(t.id, prev, tr.NewState, r.summaryLocked(t)))
	}

	for _, msg := range MapRecord(rec, t.id) {
		t.messages = append(t.messages, msg)
		if t.emitted {
			r.publish(model.NewNewMessage(t.id, msg))
		}
	}
	if len(t.messages) > maxMessages {
		drop := len(t.messages) - lowWaterMessages
		t.messages = append([]model.Message(nil), t.messages[drop:]...)
	}
}

// updateBranch adopts a branch name from a record, ignoring the
// empty string and detached-HEAD.
func (r *Registry) updateBranch(t *tracked, branch string) {
	if branch == "" || branch == "HEAD" {
		return
	}
	t.gitBranch = branch
}

func (r *Registry) settleLocked(t *tracked) {
	prev := t.machine.State
	if tr := t.machine.CheckTimeBased(); tr.Changed && t.emitted {
		r.publish(model.NewStateChanged(t.id, prev, tr.NewState, r.summaryLocked(t)))
	}
}

// checkTimeBased runs the time-driven transition check over every
// session. Called from the tick.
func (r *Registry) checkTimeBased() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.sessions {
		r.settleLocked(t)
	}
}

// probeGitStatus runs `git diff --shortstat` for each emitted
// session that is idle or awaiting permission and has not been
// probed recently. Probes run concurrently with the lock released
// so a slow git cannot stall ingestion.
func (r *Registry) probeGitStatus(ctx context.Context) {
	type candidate struct {
		id  string
		dir string
	}

	now := r.now()
	r.mu.Lock()
	var candidates []candidate
	for _, t := range r.sessions {
		if !t.emitted || t.workingDirectory == "" {
			continue
		}
		switch t.machine.State {
		case model.StateIdle, model.StatePermissionWaiting:
		default:
			continue
		}
		if now.Sub(t.lastGitProbe) < gitProbeSpacing {
			continue
		}
		t.lastGitProbe = now
		candidates = append(candidates, candidate{id: t.id, dir: t.workingDirectory})
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()
			adds, dels, ok := gitDiffShortstat(ctx, c.dir)
			if !ok {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			t, tracked := r.sessions[c.id]
			if tracked && (t.gitAdditions != adds || t.gitDeletions != dels) {
				t.gitAdditions = adds
				t.gitDeletions = dels
				r.publish(model.NewGitStatusUpdated(t.id, model.GitStatus{
					Branch:    t.gitBranch,
					Additions: adds,
					Deletions: dels,
				}))
			}
		}(c)
	}
	wg.Wait()
}

func (r *Registry) summaryLocked(t *tracked) model.SessionSummary {
	return model.SessionSummary{
		SessionID:        t.id,
		Provider:         Provider,
		State:            t.machine.State,
		ProjectPath:      t.projectPath,
		ProjectName:      t.projectName,
		WorkingDirectory: t.workingDirectory,
		CurrentTask:      t.currentTask,
		Model:            t.model,
		LastActivityAt:   t.lastActivityAt,
		StartedAt:        t.startedAt,
		CumulativeUsage:  t.usage,
		GitStatus: model.GitStatus{
			Branch:    t.gitBranch,
			Additions: t.gitAdditions,
			Deletions: t.gitDeletions,
		},
	}
}

// Sessions returns a snapshot of every emitted session, most
// recently active first.
func (r *Registry) Sessions() []model.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.SessionSummary, 0, len(r.sessions))
	for _, t := range r.sessions {
		if t.emitted {
			out = append(out, r.summaryLocked(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt != out[j].LastActivityAt {
			return out[i].LastActivityAt > out[j].LastActivityAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Detail returns the summary plus retained messages for one emitted
// session.
func (r *Registry) Detail(sessionID string) (model.SessionDetail, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.sessions[sessionID]
	if !ok || !t.emitted {
		return model.SessionDetail{}, false
	}
	return model.SessionDetail{
		SessionSummary: r.summaryLocked(t),
		Messages:       append([]model.Message(nil), t.messages...),
	}, true
}

// Messages returns the retained message window for one emitted
// session.
func (r *Registry) Messages(sessionID string) ([]model.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.sessions[sessionID]
	if !ok || !t.emitted {
		return nil, false
	}
	return append([]model.Message(nil), t.messages...), true
}
