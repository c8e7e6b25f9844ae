package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionTimestampLayout = "20060102_150405"

const (
	ModeCapture    = "capture"
	ModeWatch      = "watch"
	ModeSingleFile = "single_file"
)

type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CaptureSession identifies one run of the pipeline. Timestamp names every
// file the session produces.
type CaptureSession struct {
	ID         string
	Timestamp  string
	StartedAt  time.Time
	BufferPath string

	mu    sync.Mutex
	state State
}

func newCaptureSession(startedAt time.Time, loc *time.Location, bufferDir string) *CaptureSession {
	ts := startedAt.In(loc).Format(sessionTimestampLayout)
	s := &CaptureSession{
		ID:        uuid.NewString(),
		Timestamp: ts,
		StartedAt: startedAt,
	}
	if bufferDir != "" {
		s.BufferPath = filepath.Join(bufferDir, fmt.Sprintf("capture_%s.pcm", ts))
	}
	return s
}

func (s *CaptureSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CaptureSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
