// Package readiness decides when a segment file is complete and safe to hand
// to transcription.
package readiness

import (
	"sync"
	"time"
)

// Watcher delivers paths that were created or written in the watched
// directory. Events are hints only; the detector confirms by polling.
type Watcher interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

type Config struct {
	Dir       string
	Extension string
	// Prefix restricts detection to one capture session's files. Empty
	// accepts every chunk file, plus any other file with the extension;
	// those carry Sequence -1 and are dispatched after the chunks, by name.
	Prefix       string
	PollInterval time.Duration
	StablePolls  int
	MaxWait      time.Duration
}

// ProcessedSet records the paths that have already been dispatched.
type ProcessedSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{paths: make(map[string]struct{})}
}

// MarkIfAbsent adds path and reports whether it was not present before.
func (s *ProcessedSet) MarkIfAbsent(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; ok {
		return false
	}
	s.paths[path] = struct{}{}
	return true
}

func (s *ProcessedSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// WatchFunc starts watching dir. The detector falls back to polling alone
// when it returns an error.
type WatchFunc func(dir string) (Watcher, error)
