package segment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

type Status int

const (
	StatusPending Status = iota
	StatusCutting
	StatusReady
	StatusDispatched
	StatusTranscribed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCutting:
		return "cutting"
	case StatusReady:
		return "ready"
	case StatusDispatched:
		return "dispatched"
	case StatusTranscribed:
		return "transcribed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Segment is one slice of captured audio persisted as its own file. Start and
// End are relative to the session start; both are zero when the window is
// unknown, e.g. for a file handed in from outside the cutter.
type Segment struct {
	Sequence int
	Start    time.Duration
	End      time.Duration
	Path     string
	Size     int64
	Status   Status
	Degraded bool
}

func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

func (s Segment) Name() string {
	return filepath.Base(s.Path)
}

var fileNamePattern = regexp.MustCompile(`^chunk_(.+)_(\d{3,})\.([A-Za-z0-9]+)$`)

// FileName builds chunk_{sessionTimestamp}_{sequence:03d}.{ext}.
func FileName(sessionTimestamp string, sequence int, ext string) string {
	return fmt.Sprintf("chunk_%s_%03d.%s", sessionTimestamp, sequence, ext)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (sessionTimestamp string, sequence int, ext string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, "", false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, "", false
	}
	return m[1], seq, m[3], true
}

// FromPath describes an existing file. Sequence is -1 when the name does not
// follow the chunk convention.
func FromPath(path string) Segment {
	seg := Segment{Sequence: -1, Path: path, Status: StatusReady}
	if _, seq, _, ok := ParseFileName(filepath.Base(path)); ok {
		seg.Sequence = seq
	}
	return seg
}
