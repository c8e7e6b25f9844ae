package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/clock"
)

// Buffer is the read side of a capture buffer: raw PCM starting at session
// time zero, of which the first FlushedBytes are known to be written.
type Buffer interface {
	Path() string
	FlushedBytes() int64
}

// CutError reports a window that could not be extracted. The cutter keeps its
// position and retries the same window on the next tick.
type CutError struct {
	Sequence int
	Start    time.Duration
	End      time.Duration
	Err      error
}

func (e *CutError) Error() string {
	return fmt.Sprintf("cut segment %d [%s, %s): %v", e.Sequence, e.Start, e.End, e.Err)
}

func (e *CutError) Unwrap() error {
	return e.Err
}

type CutterConfig struct {
	SessionTimestamp string
	Dir              string
	TargetDuration   time.Duration
	PollInterval     time.Duration
	Format           audio.PCMFormat
}

// Cutter slices a growing buffer into contiguous, non-overlapping segment
// files. lastCut and nextSeq are owned by the goroutine running Run; history
// may be read concurrently through Window.
type Cutter struct {
	cfg     CutterConfig
	buffer  Buffer
	clock   clock.Clock
	encoder audio.SegmentEncoder

	lastCut time.Duration
	nextSeq int

	mu      sync.Mutex
	history []Segment
}

func NewCutter(cfg CutterConfig, buffer Buffer, clk clock.Clock, encoder audio.SegmentEncoder) *Cutter {
	return &Cutter{
		cfg:     cfg,
		buffer:  buffer,
		clock:   clk,
		encoder: encoder,
	}
}

// Run cuts on every poll tick until ctx is done, then cuts whatever remains
// of the buffer before returning.
func (c *Cutter) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	slog.Info("segment cutter started", "dir", c.cfg.Dir, "target_duration", c.cfg.TargetDuration, "poll_interval", c.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			c.cutTail()
			slog.Info("segment cutter stopped", "segments", c.nextSeq, "last_cut", c.lastCut)
			return
		case <-ticker.C:
			if _, err := c.tick(); err != nil {
				slog.Warn("segment cut failed; retrying next tick", "error", err)
			}
		}
	}
}

// tick reports whether a segment was cut.
func (c *Cutter) tick() (bool, error) {
	elapsed := c.clock.Elapsed() - c.lastCut
	if elapsed < c.cfg.TargetDuration {
		return false, nil
	}
	start := c.lastCut
	end := start + c.cfg.TargetDuration
	if flushed := c.buffer.FlushedBytes(); flushed < c.cfg.Format.Offset(end) {
		slog.Debug("window not yet flushed to buffer", "start", start, "end", end, "flushed_bytes", flushed)
		return false, nil
	}
	if _, err := c.cut(start, end); err != nil {
		return false, err
	}
	return true, nil
}

// cutTail cuts [lastCut, flushed) as full windows followed by one shorter
// final segment.
func (c *Cutter) cutTail() {
	flushedEnd := c.cfg.Format.Duration(c.buffer.FlushedBytes())
	for c.lastCut < flushedEnd {
		end := min(c.lastCut+c.cfg.TargetDuration, flushedEnd)
		if c.cfg.Format.Offset(end) <= c.cfg.Format.Offset(c.lastCut) {
			return
		}
		if _, err := c.cut(c.lastCut, end); err != nil {
			slog.Error("final tail cut failed", "error", err)
			return
		}
	}
}

func (c *Cutter) cut(start, end time.Duration) (Segment, error) {
	seg := Segment{
		Sequence: c.nextSeq,
		Start:    start,
		End:      end,
		Path:     filepath.Join(c.cfg.Dir, FileName(c.cfg.SessionTimestamp, c.nextSeq, c.encoder.Extension())),
		Status:   StatusCutting,
	}
	size, err := c.extract(seg)
	if err != nil {
		return Segment{}, &CutError{Sequence: seg.Sequence, Start: start, End: end, Err: err}
	}
	seg.Size = size
	seg.Status = StatusPending
	c.lastCut = end
	c.nextSeq++
	c.mu.Lock()
	c.history = append(c.history, seg)
	c.mu.Unlock()
	slog.Info("segment cut", "segment", seg.Name(), "sequence", seg.Sequence, "start", start, "end", end, "bytes", size)
	return seg, nil
}

// extract writes the window to a hidden temp file in the output directory and
// renames it into place, so the final name only ever refers to a whole file.
func (c *Cutter) extract(seg Segment) (int64, error) {
	startByte := c.cfg.Format.Offset(seg.Start)
	endByte := c.cfg.Format.Offset(seg.End)

	src, err := os.Open(c.buffer.Path())
	if err != nil {
		return 0, fmt.Errorf("open buffer: %w", err)
	}
	defer src.Close()
	st, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat buffer: %w", err)
	}
	if st.Size() < endByte {
		return 0, fmt.Errorf("buffer holds %d bytes, window needs %d", st.Size(), endByte)
	}

	tmpPath := filepath.Join(c.cfg.Dir, "."+seg.Name()+".part")
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp segment: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	pcm := io.NewSectionReader(src, startByte, endByte-startByte)
	if err := c.encoder.Encode(tmp, pcm, endByte-startByte, c.cfg.Format); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp segment: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat temp segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp segment: %w", err)
	}
	if _, err := os.Stat(seg.Path); err == nil {
		return 0, fmt.Errorf("segment %s already exists", seg.Path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("stat segment: %w", err)
	}
	if err := os.Rename(tmpPath, seg.Path); err != nil {
		return 0, fmt.Errorf("publish segment: %w", err)
	}
	committed = true
	return info.Size(), nil
}

func (c *Cutter) LastCutTime() time.Duration {
	return c.lastCut
}

func (c *Cutter) NextSequence() int {
	return c.nextSeq
}

func (c *Cutter) History() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Segment, len(c.history))
	copy(out, c.history)
	return out
}

// Window returns the time window of an already cut segment.
func (c *Cutter) Window(sequence int) (start, end time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sequence < 0 || sequence >= len(c.history) {
		return 0, 0, false
	}
	seg := c.history[sequence]
	return seg.Start, seg.End, true
}
