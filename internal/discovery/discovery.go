// Package discovery scans the agent's projects directory for
// session log files and reports sessions appearing and vanishing.
// It never parses the files; it only names them.
package discovery

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	scanInterval = 5 * time.Second
	// Logs untouched for longer than this are considered dead and
	// never surfaced.
	maxLogAge = 24 * time.Hour
	// A session id must be missing from this many consecutive scans
	// before Removed fires, to tolerate transient rename races.
	removalScans = 2
)

// Found names a newly discovered session log.
type Found struct {
	SessionID   string
	LogFile     string
	ProjectPath string
	ProjectName string
}

// Scanner watches a projects directory. Callbacks run on the
// scanner's goroutine; they must not block for long.
type Scanner struct {
	root      string
	onFound   func(Found)
	onRemoved func(sessionID string)

	known   map[string]struct{}
	missing map[string]int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewScanner creates a scanner over root, typically
// ~/.claude/projects.
func NewScanner(
	root string, onFound func(Found), onRemoved func(sessionID string),
) *Scanner {
	return &Scanner{
		root:      root,
		onFound:   onFound,
		onRemoved: onRemoved,
		known:     make(map[string]struct{}),
		missing:   make(map[string]int),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start performs an initial scan and then rescans periodically.
func (s *Scanner) Start() {
	go s.loop()
}

// Stop ends the scan loop and waits for it to exit.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *Scanner) loop() {
	defer close(s.done)
	s.scan()

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan walks the project subdirectories once, emitting Found for
// new session ids and Removed for ids gone long enough.
func (s *Scanner) scan() {
	seen := make(map[string]struct{})

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("discovery: read %s: %v", s.root, err)
		}
		return
	}

	cutoff := s.now().Add(-maxLogAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectPath := DecodeProjectDir(entry.Name())
		projectName := projectPath[strings.LastIndex(projectPath, "/")+1:]
		dir := filepath.Join(s.root, entry.Name())

		files, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("discovery: read %s: %v", dir, err)
			continue
		}
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			info, err := file.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				continue
			}
			id := strings.TrimSuffix(name, ".jsonl")
			seen[id] = struct{}{}
			if _, ok := s.known[id]; !ok {
				s.known[id] = struct{}{}
				s.onFound(Found{
					SessionID:   id,
					LogFile:     filepath.Join(dir, name),
					ProjectPath: projectPath,
					ProjectName: projectName,
				})
			}
		}
	}

	for id := range s.known {
		if _, ok := seen[id]; ok {
			delete(s.missing, id)
			continue
		}
		s.missing[id]++
		if s.missing[id] >= removalScans {
			delete(s.known, id)
			delete(s.missing, id)
			s.onRemoved(id)
		}
	}
}

// DecodeProjectDir reverses the directory-name encoding the agent
// uses under its projects root: a leading "-" marks an absolute
// path, and every "-" stands for a path separator.
func DecodeProjectDir(name string) string {
	if strings.HasPrefix(name, "-") {
		return "/" + strings.ReplaceAll(name[1:], "-", "/")
	}
	return strings.ReplaceAll(name, "-", "/")
}
