// Package transcript writes the local, append-only transcript log of a
// session.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/livescribe/internal/transcriber"
)

const (
	headerTimeLayout = "2006-01-02 15:04:05"
	blockTimeLayout  = "15:04:05"
	ruleWidth        = 80
)

func FileName(sessionTimestamp string) string {
	return fmt.Sprintf("session_%s.txt", sessionTimestamp)
}

// Log appends one block per transcribed segment. Every block is written with
// a single Write followed by Sync, so a crash never leaves half a block.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
	loc  *time.Location
}

// Open creates or reopens the log for a session. The header is written only
// when the file is new.
func Open(dir, sessionTimestamp, title string, startedAt time.Time, loc *time.Location) (*Log, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	path := filepath.Join(dir, FileName(sessionTimestamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript log: %w", err)
	}
	l := &Log{f: f, path: path, loc: loc}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat transcript log: %w", err)
	}
	if info.Size() == 0 {
		if err := l.write(FormatHeader(title, startedAt.In(loc))); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Append(res *transcriber.Result) error {
	return l.write(FormatBlock(res, l.loc))
}

func (l *Log) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.f.WriteString(s); err != nil {
		return fmt.Errorf("write transcript log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync transcript log: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func FormatHeader(title string, startedAt time.Time) string {
	rule := strings.Repeat("=", ruleWidth)
	return fmt.Sprintf("%s\n%s\nDate: %s\n%s\n\n", rule, title, startedAt.Format(headerTimeLayout), rule)
}

func FormatBlock(res *transcriber.Result, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- %s - %s ---\n", res.TranscribedAt.In(loc).Format(blockTimeLayout), res.Segment.Name())
	fmt.Fprintf(&b, "Duration: %s | Segments: %d\n", FormatSeconds(res.Duration), len(res.Utterances))
	for _, u := range res.Utterances {
		b.WriteString(FormatUtterance(u))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatUtterance renders "[1.5s - 3.0s] text".
func FormatUtterance(u transcriber.Utterance) string {
	return fmt.Sprintf("[%s - %s] %s", FormatSeconds(u.Start), FormatSeconds(u.End), u.Text)
}

func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
