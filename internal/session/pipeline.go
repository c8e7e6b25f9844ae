package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/livescribe/internal/clock"
	"github.com/foxseedlab/livescribe/internal/queue"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/segment"
	"github.com/foxseedlab/livescribe/internal/transcriber"
	"github.com/foxseedlab/livescribe/internal/transcript"
	"github.com/foxseedlab/livescribe/internal/upload"
)

type windowFunc func(sequence int) (start, end time.Duration, ok bool)

// pipeline is the transcription side shared by every mode: it turns ready
// segments into transcript log blocks and upload tasks.
type pipeline struct {
	o        *Orchestrator
	sess     *CaptureSession
	log      *transcript.Log
	engine   *transcriber.Engine
	worker   *upload.Worker
	dispatch *queue.Queue[segment.Segment]
	window   windowFunc

	// The consumer may still be running when finish reads these after a
	// shutdown timeout.
	handled     atomic.Int64
	transcribed atomic.Int64
	empty       atomic.Int64
	failed      atomic.Int64
}

// Summary counts what a finished session did with its segments.
type Summary struct {
	SessionID        string
	Status           repository.SessionStatus
	Segments         int64
	Transcribed      int64
	Empty            int64
	Failed           int64
	UploadsDelivered int64
	UploadsFailed    int64
}

func (o *Orchestrator) newPipeline(ctx context.Context, sess *CaptureSession, clk clock.Clock) (*pipeline, error) {
	log, err := transcript.Open(o.cfg.TranscriptsDir, sess.Timestamp, o.cfg.TranscriptTitle, sess.StartedAt, o.cfg.Location())
	if err != nil {
		return nil, err
	}
	o.checkStore(ctx)
	slog.Info("transcript log opened", "session_id", sess.ID, "path", log.Path())
	return &pipeline{
		o:      o,
		sess:   sess,
		log:    log,
		engine: transcriber.NewEngine(o.deps.Model, o.deps.Prober, o.cfg.TranscribeLanguage, clk),
		worker: upload.NewWorker(o.deps.Store, upload.Config{
			RatePerMinute: o.cfg.UploadRatePerMinute,
			CallTimeout:   o.cfg.UploadCallTimeout,
		}),
		dispatch: queue.New[segment.Segment](),
	}, nil
}

func (o *Orchestrator) checkStore(ctx context.Context) {
	checker, ok := o.deps.Store.(remote.Checker)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.UploadCallTimeout)
	defer cancel()
	if err := checker.Check(ctx); err != nil {
		slog.Warn("remote store check failed; uploads to it will be dropped", "store", o.deps.Store.Name(), "error", err)
	}
}

// consume handles dispatched segments one at a time until the dispatch queue
// is closed and empty, or ctx is done.
func (p *pipeline) consume(ctx context.Context) {
	for {
		seg, ok := p.dispatch.Pop(ctx)
		if !ok {
			return
		}
		_ = p.handle(ctx, seg)
	}
}

func (p *pipeline) handle(ctx context.Context, seg segment.Segment) error {
	p.handled.Add(1)
	if p.window != nil {
		if start, end, ok := p.window(seg.Sequence); ok {
			seg.Start, seg.End = start, end
		}
	}
	seg.Status = segment.StatusDispatched
	if seg.Degraded {
		slog.Warn("transcribing segment that never settled", "segment", seg.Name())
	}

	res, err := p.engine.Transcribe(ctx, seg)
	if err != nil {
		p.failed.Add(1)
		slog.Error("segment transcription failed", "session_id", p.sess.ID, "segment", seg.Name(), "error", err)
		return err
	}
	if res.Empty() {
		p.empty.Add(1)
		slog.Info("no speech detected in segment", "session_id", p.sess.ID, "segment", seg.Name())
		return nil
	}
	p.transcribed.Add(1)
	if err := p.log.Append(res); err != nil {
		slog.Error("failed to append transcript block", "segment", seg.Name(), "error", err)
	}
	if !p.worker.Enqueue(upload.Task{Entry: buildRemoteEntry(p.sess, res), Segment: res.Segment}) {
		slog.Warn("upload queue closed; transcript not mirrored", "segment", seg.Name())
	}
	return nil
}

// finish records the session outcome and releases the transcript log.
func (p *pipeline) finish(status repository.SessionStatus, reason string) {
	sum := Summary{
		SessionID:        p.sess.ID,
		Status:           status,
		Segments:         p.handled.Load(),
		Transcribed:      p.transcribed.Load(),
		Empty:            p.empty.Load(),
		Failed:           p.failed.Load(),
		UploadsDelivered: p.worker.Delivered(),
		UploadsFailed:    p.worker.Failed(),
	}
	p.o.completeSession(p.sess, status, reason, int(sum.Segments))
	if err := p.log.Close(); err != nil {
		slog.Error("failed to close transcript log", "path", p.log.Path(), "error", err)
	}
	p.sess.setState(StateStopped)
	p.o.setSummary(sum)
	slog.Info("session finished",
		"session_id", sum.SessionID,
		"status", status,
		"segments", sum.Segments,
		"transcribed", sum.Transcribed,
		"empty", sum.Empty,
		"failed", sum.Failed,
		"uploads_delivered", sum.UploadsDelivered,
		"uploads_failed", sum.UploadsFailed,
	)
}
