package readiness

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/foxseedlab/livescribe/internal/queue"
	"github.com/foxseedlab/livescribe/internal/segment"
)

type trackState int

const (
	stateSeen trackState = iota
	stateStable
	stateReady
)

type tracked struct {
	seg       segment.Segment
	chunk     bool
	timestamp string
	state     trackState
	lastSize  int64
	stable    int
	polls     int
}

// Detector tracks candidate segment files until their size stops changing,
// then pushes them onto the dispatch queue in sequence order. Run and Drain
// must not be called concurrently.
type Detector struct {
	cfg       Config
	watcher   Watcher
	processed *ProcessedSet
	out       *queue.Queue[segment.Segment]

	tracked  map[string]*tracked
	maxPolls int
}

// NewDetector creates a detector. watcher may be nil, in which case only
// directory polling is used.
func NewDetector(cfg Config, watcher Watcher, processed *ProcessedSet, out *queue.Queue[segment.Segment]) *Detector {
	maxPolls := int(cfg.MaxWait / cfg.PollInterval)
	if cfg.MaxWait%cfg.PollInterval != 0 {
		maxPolls++
	}
	return &Detector{
		cfg:       cfg,
		watcher:   watcher,
		processed: processed,
		out:       out,
		tracked:   make(map[string]*tracked),
		maxPolls:  max(maxPolls, cfg.StablePolls),
	}
}

func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan string
	var errs <-chan error
	if d.watcher != nil {
		events = d.watcher.Events()
		errs = d.watcher.Errors()
	}

	slog.Info("readiness detector started", "dir", d.cfg.Dir, "prefix", d.cfg.Prefix, "stable_polls", d.cfg.StablePolls, "max_wait", d.cfg.MaxWait)
	d.scan()
	for {
		select {
		case <-ctx.Done():
			slog.Info("readiness detector stopped", "tracked", len(d.tracked), "dispatched", d.processed.Len())
			return
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.observe(path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("file watcher error; falling back to polling", "error", err)
		case <-ticker.C:
			d.step()
		}
	}
}

// Drain keeps polling until every tracked file has been dispatched or ctx is
// done. Call it after Run has returned.
func (d *Detector) Drain(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	d.scan()
	for len(d.tracked) > 0 {
		select {
		case <-ctx.Done():
			slog.Warn("readiness drain interrupted", "pending", len(d.tracked))
			return ctx.Err()
		case <-ticker.C:
			d.step()
		}
	}
	return nil
}

// Pending returns how many files are still being watched.
func (d *Detector) Pending() int {
	return len(d.tracked)
}

func (d *Detector) step() {
	d.scan()
	d.poll()
	d.flushReady()
}

func (d *Detector) scan() {
	entries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		slog.Warn("failed to scan segment directory", "dir", d.cfg.Dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d.observe(filepath.Join(d.cfg.Dir, e.Name()))
	}
}

// observe starts tracking path if it is a candidate segment not seen before.
func (d *Detector) observe(path string) {
	if _, ok := d.tracked[path]; ok {
		return
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	ts, seq, ext, chunk := segment.ParseFileName(name)
	switch {
	case chunk:
		if !strings.EqualFold(ext, d.cfg.Extension) || (d.cfg.Prefix != "" && ts != d.cfg.Prefix) {
			return
		}
	case d.cfg.Prefix == "":
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), d.cfg.Extension) {
			return
		}
		seq = -1
	default:
		return
	}
	if d.processed.Contains(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	d.tracked[path] = &tracked{
		seg:       segment.Segment{Sequence: seq, Path: path, Status: segment.StatusPending},
		chunk:     chunk,
		timestamp: ts,
		state:     stateSeen,
		lastSize:  info.Size(),
	}
	slog.Debug("segment file detected", "segment", name, "size", info.Size())
}

func (d *Detector) poll() {
	for path, t := range d.tracked {
		if t.state == stateReady {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Warn("segment file disappeared before it was ready", "segment", t.seg.Name())
				delete(d.tracked, path)
			}
			continue
		}
		size := info.Size()
		t.polls++
		if size > 0 && size == t.lastSize {
			t.stable++
			t.state = stateStable
		} else {
			t.stable = 0
			t.state = stateSeen
		}
		t.lastSize = size

		switch {
		case t.stable >= d.cfg.StablePolls:
			t.state = stateReady
		case t.polls >= d.maxPolls:
			t.state = stateReady
			t.seg.Degraded = true
			slog.Warn("segment did not settle within max wait; dispatching anyway", "segment", t.seg.Name(), "size", size, "max_wait", d.cfg.MaxWait)
		}
		if t.state == stateReady {
			t.seg.Size = size
			t.seg.Status = segment.StatusReady
		}
	}
}

// flushReady dispatches ready files in ascending order, chunk files before
// any others, stopping at the first tracked file that is still settling.
func (d *Detector) flushReady() {
	ordered := make([]*tracked, 0, len(d.tracked))
	for _, t := range d.tracked {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].chunk != ordered[j].chunk {
			return ordered[i].chunk
		}
		if !ordered[i].chunk {
			return ordered[i].seg.Path < ordered[j].seg.Path
		}
		if ordered[i].timestamp != ordered[j].timestamp {
			return ordered[i].timestamp < ordered[j].timestamp
		}
		return ordered[i].seg.Sequence < ordered[j].seg.Sequence
	})
	for _, t := range ordered {
		if t.state != stateReady {
			return
		}
		delete(d.tracked, t.seg.Path)
		if !d.processed.MarkIfAbsent(t.seg.Path) {
			continue
		}
		if !d.out.Push(t.seg) {
			slog.Warn("dispatch queue closed; segment not transcribed", "segment", t.seg.Name())
			continue
		}
		slog.Info("segment ready", "segment", t.seg.Name(), "sequence", t.seg.Sequence, "bytes", t.seg.Size, "degraded", t.seg.Degraded)
	}
}
