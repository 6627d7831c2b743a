// Package tailer follows a single growing JSONL log file and emits
// parsed record batches. One Tailer per session log.
package tailer

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dsaito/agentboard/internal/parser"
)

// pollInterval is the fallback wake source for platforms or paths
// where change notifications are unreliable or coalesced.
const pollInterval = 2 * time.Second

// Tailer reads a log file incrementally from a byte offset,
// carrying unterminated trailing fragments between reads. It never
// rewinds: the source files are append-only, so a shrinking file is
// treated as no new data.
type Tailer struct {
	path    string
	out     chan<- []parser.Record
	watcher *fsnotify.Watcher

	offset    int64
	remainder string

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a tailer for path that sends non-empty record batches
// on out. Call Start to begin reading.
func New(path string, out chan<- []parser.Record) *Tailer {
	return &Tailer{
		path: path,
		out:  out,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start spawns the wake loop. The file's directory is watched
// rather than the file itself so the tailer survives the file being
// recreated.
func (t *Tailer) Start() {
	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := fsw.Add(filepath.Dir(t.path)); addErr != nil {
			fsw.Close()
			fsw = nil
		}
	} else {
		log.Printf("tailer %s: fsnotify unavailable, polling only: %v",
			t.path, err)
		fsw = nil
	}
	t.watcher = fsw
	go t.loop()
}

// Stop ends the wake loop and waits for it to exit.
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
		if t.watcher != nil {
			t.watcher.Close()
		}
	})
}

func (t *Tailer) loop() {
	defer close(t.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Catch up on anything written before the tailer attached.
	t.readNew()

	var events <-chan fsnotify.Event
	var errors <-chan error
	if t.watcher != nil {
		events = t.watcher.Events
		errors = t.watcher.Errors
	}

	for {
		select {
		case <-t.stop:
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Name != t.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t.readNew()

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			log.Printf("tailer %s: watch error: %v", t.path, err)

		case <-ticker.C:
			t.readNew()
		}
	}
}

// readNew reads [offset, size) from the file, parses it together
// with the carried remainder, and emits any complete records. I/O
// errors are logged and swallowed; the next wake retries.
func (t *Tailer) readNew() {
	info, err := os.Stat(t.path)
	if err != nil {
		// Missing file is routine during rotation.
		if !os.IsNotExist(err) {
			log.Printf("tailer %s: stat: %v", t.path, err)
		}
		return
	}
	size := info.Size()
	if size <= t.offset {
		return
	}

	f, err := os.Open(t.path)
	if err != nil {
		log.Printf("tailer %s: open: %v", t.path, err)
		return
	}
	defer f.Close()

	buf := make([]byte, size-t.offset)
	n, err := f.ReadAt(buf, t.offset)
	if err != nil && err != io.EOF {
		log.Printf("tailer %s: read: %v", t.path, err)
		return
	}
	t.offset += int64(n)

	chunk := t.remainder + strings.ToValidUTF8(string(buf[:n]), "�")
	records, remainder := parser.ParseChunk(chunk)
	t.remainder = remainder

	if len(records) == 0 {
		return
	}
	select {
	case t.out <- records:
	case <-t.stop:
	}
}
