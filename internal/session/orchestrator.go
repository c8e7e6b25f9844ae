package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/capture"
	"github.com/foxseedlab/livescribe/internal/clock"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/queue"
	"github.com/foxseedlab/livescribe/internal/readiness"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/segment"
	"github.com/foxseedlab/livescribe/internal/transcriber"
)

const repositoryTimeout = 10 * time.Second

type Dependencies struct {
	Source   capture.Source
	Resolver capture.Resolver
	Encoder  audio.SegmentEncoder
	Model    transcriber.Model
	// Prober is optional; it supplies durations for segments with no capture window.
	Prober audio.DurationProber
	Store  remote.Store
	Repo   repository.Repository
	// Watch is optional; without it the detector only polls.
	Watch readiness.WatchFunc
}

// Orchestrator wires capture, cutting, readiness, transcription and upload
// together and owns the session lifecycle.
type Orchestrator struct {
	cfg  *config.Config
	deps Dependencies

	mu      sync.Mutex
	summary Summary
}

func NewOrchestrator(cfg *config.Config, deps Dependencies) *Orchestrator {
	if deps.Store == nil {
		deps.Store = remote.NewMulti()
	}
	if deps.Repo == nil {
		deps.Repo = repository.Nop{}
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Summary returns the counts of the most recently finished session.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

func (o *Orchestrator) setSummary(s Summary) {
	o.mu.Lock()
	o.summary = s
	o.mu.Unlock()
}

// Run captures the configured live stream until ctx is done or the capture
// dies, then shuts the pipeline down stage by stage. Every stage is bounded,
// so Run always returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.cfg.ValidateCapture(); err != nil {
		return err
	}
	if err := o.prepareDirs(); err != nil {
		return err
	}
	url, err := o.streamURL(ctx)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()
	sess := newCaptureSession(clk.Now(), o.cfg.Location(), o.cfg.OutputDir)
	if err := o.createSession(ctx, sess, ModeCapture, o.sourceName()); err != nil {
		return err
	}
	slog.Info("capture session starting", "session_id", sess.ID, "timestamp", sess.Timestamp, "buffer", sess.BufferPath)

	capturer := capture.NewCapturer(o.deps.Source, sess.BufferPath, o.cfg.CaptureStopTimeout)
	if err := capturer.Start(ctx, url); err != nil {
		o.completeSession(sess, repository.SessionStatusFailed, err.Error(), 0)
		sess.setState(StateStopped)
		return err
	}
	sess.setState(StateRunning)

	p, err := o.newPipeline(ctx, sess, clk)
	if err != nil {
		if stopErr := capturer.Stop(); stopErr != nil {
			slog.Warn("capture stop incomplete", "error", stopErr)
		}
		o.releaseBuffer(sess)
		o.completeSession(sess, repository.SessionStatusFailed, err.Error(), 0)
		sess.setState(StateStopped)
		return err
	}

	cutter := segment.NewCutter(segment.CutterConfig{
		SessionTimestamp: sess.Timestamp,
		Dir:              o.cfg.ChunksDir,
		TargetDuration:   o.cfg.SegmentDuration,
		PollInterval:     o.cfg.CutPollInterval,
		Format:           audio.MonoPCM16(o.cfg.SampleRate),
	}, capturer, clk, o.deps.Encoder)
	p.window = cutter.Window
	detector, closeWatcher := o.newDetector(sess.Timestamp, p.dispatch)

	cutCtx, cancelCut := context.WithCancel(context.Background())
	defer cancelCut()
	detectCtx, cancelDetect := context.WithCancel(context.Background())
	defer cancelDetect()
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	uploadCtx, cancelUpload := context.WithCancel(context.Background())
	defer cancelUpload()

	cutterDone := spawn(func() { cutter.Run(cutCtx) })
	detectorDone := spawn(func() { detector.Run(detectCtx) })
	consumerDone := spawn(func() { p.consume(workCtx) })
	workerDone := spawn(func() { p.worker.Run(uploadCtx) })
	slog.Info("capture session running", "session_id", sess.ID, "url", o.sourceName())

	var runErr error
	reason := "stopped by signal"
	select {
	case <-ctx.Done():
	case <-capturer.Done():
		runErr = capturer.Err()
		if runErr == nil {
			runErr = &capture.CaptureTerminatedError{FlushedBytes: capturer.FlushedBytes(), Err: errors.New("writer exited")}
		}
	}
	sess.setState(StateStopping)
	slog.Info("capture session stopping", "session_id", sess.ID, "reason", stopReason(runErr, reason))

	if err := capturer.Stop(); err != nil {
		slog.Warn("capture stop incomplete", "session_id", sess.ID, "error", err)
	}

	cancelCut()
	await("segment cutter", cutterDone, o.cfg.ShutdownStepTimeout)

	cancelDetect()
	detectorStopped := await("readiness detector", detectorDone, o.cfg.ShutdownStepTimeout)
	closeWatcher()
	if detectorStopped {
		o.drainDetector(detector)
	}
	p.dispatch.Close()
	if !await("transcription consumer", consumerDone, o.cfg.ShutdownStepTimeout) {
		cancelWork()
		await("transcription cancel", consumerDone, o.cfg.CaptureStopTimeout)
	}

	o.drainUploads(p, workerDone, cancelUpload)

	o.releaseBuffer(sess)
	p.finish(sessionStatus(runErr), stopReason(runErr, reason))
	return runErr
}

// Watch transcribes chunk files that appear in the chunks directory, from any
// session, until ctx is done.
func (o *Orchestrator) Watch(ctx context.Context) error {
	if err := o.prepareDirs(); err != nil {
		return err
	}
	clk := clock.NewSystem()
	sess := newCaptureSession(clk.Now(), o.cfg.Location(), "")
	if err := o.createSession(ctx, sess, ModeWatch, o.cfg.ChunksDir); err != nil {
		return err
	}
	p, err := o.newPipeline(ctx, sess, clk)
	if err != nil {
		o.completeSession(sess, repository.SessionStatusFailed, err.Error(), 0)
		return err
	}
	sess.setState(StateRunning)
	detector, closeWatcher := o.newDetector("", p.dispatch)

	detectCtx, cancelDetect := context.WithCancel(context.Background())
	defer cancelDetect()
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	uploadCtx, cancelUpload := context.WithCancel(context.Background())
	defer cancelUpload()

	detectorDone := spawn(func() { detector.Run(detectCtx) })
	consumerDone := spawn(func() { p.consume(workCtx) })
	workerDone := spawn(func() { p.worker.Run(uploadCtx) })
	slog.Info("watching for segments", "session_id", sess.ID, "dir", o.cfg.ChunksDir)

	<-ctx.Done()
	sess.setState(StateStopping)

	cancelDetect()
	detectorStopped := await("readiness detector", detectorDone, o.cfg.ShutdownStepTimeout)
	closeWatcher()
	if detectorStopped {
		o.drainDetector(detector)
	}
	p.dispatch.Close()
	if !await("transcription consumer", consumerDone, o.cfg.ShutdownStepTimeout) {
		cancelWork()
		await("transcription cancel", consumerDone, o.cfg.CaptureStopTimeout)
	}
	o.drainUploads(p, workerDone, cancelUpload)
	p.finish(repository.SessionStatusCompleted, "stopped by signal")
	return nil
}

// TranscribeFile runs exactly one transcription cycle on an existing audio
// file and waits for its upload.
func (o *Orchestrator) TranscribeFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("audio file %s is a directory", path)
	}

	clk := clock.NewSystem()
	sess := newCaptureSession(clk.Now(), o.cfg.Location(), "")
	if err := o.createSession(ctx, sess, ModeSingleFile, path); err != nil {
		return err
	}
	p, err := o.newPipeline(ctx, sess, clk)
	if err != nil {
		o.completeSession(sess, repository.SessionStatusFailed, err.Error(), 0)
		return err
	}
	sess.setState(StateRunning)

	uploadCtx, cancelUpload := context.WithCancel(context.Background())
	defer cancelUpload()
	workerDone := spawn(func() { p.worker.Run(uploadCtx) })

	seg := segment.FromPath(path)
	seg.Size = info.Size()
	handleErr := p.handle(ctx, seg)

	sess.setState(StateStopping)
	o.drainUploads(p, workerDone, cancelUpload)
	p.finish(sessionStatus(handleErr), stopReason(handleErr, "single file transcribed"))
	return handleErr
}

func (o *Orchestrator) prepareDirs() error {
	for _, dir := range []string{o.cfg.OutputDir, o.cfg.ChunksDir, o.cfg.TranscriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return nil
}

func (o *Orchestrator) streamURL(ctx context.Context) (string, error) {
	if o.cfg.StreamURL != "" {
		return o.cfg.StreamURL, nil
	}
	if o.deps.Resolver == nil {
		return "", fmt.Errorf("no resolver available for %s", o.cfg.StreamPageURL)
	}
	url, err := o.deps.Resolver.Resolve(ctx, o.cfg.StreamPageURL)
	if err != nil {
		return "", err
	}
	slog.Info("stream page resolved", "page_url", o.cfg.StreamPageURL)
	return url, nil
}

func (o *Orchestrator) sourceName() string {
	if o.cfg.StreamURL != "" {
		return o.cfg.StreamURL
	}
	return o.cfg.StreamPageURL
}

func (o *Orchestrator) newDetector(prefix string, out *queue.Queue[segment.Segment]) (*readiness.Detector, func()) {
	var watcher readiness.Watcher
	if o.deps.Watch != nil {
		w, err := o.deps.Watch(o.cfg.ChunksDir)
		if err != nil {
			slog.Warn("file watcher unavailable; polling only", "dir", o.cfg.ChunksDir, "error", err)
		} else {
			watcher = w
		}
	}
	d := readiness.NewDetector(readiness.Config{
		Dir:          o.cfg.ChunksDir,
		Extension:    o.deps.Encoder.Extension(),
		Prefix:       prefix,
		PollInterval: o.cfg.ReadinessPollInterval,
		StablePolls:  o.cfg.ReadinessStablePolls,
		MaxWait:      o.cfg.ReadinessMaxWait,
	}, watcher, readiness.NewProcessedSet(), out)
	closeWatcher := func() {
		if watcher == nil {
			return
		}
		if err := watcher.Close(); err != nil {
			slog.Warn("failed to close file watcher", "error", err)
		}
	}
	return d, closeWatcher
}

func (o *Orchestrator) drainDetector(d *readiness.Detector) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownStepTimeout)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		slog.Warn("segments left undispatched at shutdown", "pending", d.Pending(), "error", err)
	}
}

// drainUploads stops accepting tasks and gives the worker UploadDrainTimeout
// to empty its queue before abandoning the rest.
func (o *Orchestrator) drainUploads(p *pipeline, workerDone <-chan struct{}, cancel context.CancelFunc) {
	p.worker.Close()
	if await("upload drain", workerDone, o.cfg.UploadDrainTimeout) {
		return
	}
	slog.Warn("abandoning queued uploads", "pending", p.worker.Pending())
	cancel()
	await("upload worker", workerDone, o.cfg.UploadCallTimeout)
}

func (o *Orchestrator) releaseBuffer(sess *CaptureSession) {
	if o.cfg.KeepCaptureBuffer {
		slog.Info("capture buffer kept", "path", sess.BufferPath)
		return
	}
	if err := os.Remove(sess.BufferPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove capture buffer", "path", sess.BufferPath, "error", err)
	}
}

func (o *Orchestrator) createSession(ctx context.Context, sess *CaptureSession, mode, source string) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()
	if _, err := o.deps.Repo.CreateSession(ctx, repository.CreateSessionInput{
		ID:        sess.ID,
		Timestamp: sess.Timestamp,
		Mode:      mode,
		Source:    source,
		StartedAt: sess.StartedAt,
	}); err != nil {
		slog.Error("failed to create session record", "session_id", sess.ID, "error", err)
		return fmt.Errorf("create session record: %w", err)
	}
	return nil
}

func (o *Orchestrator) completeSession(sess *CaptureSession, status repository.SessionStatus, reason string, segments int) {
	ctx, cancel := context.WithTimeout(context.Background(), repositoryTimeout)
	defer cancel()
	if err := o.deps.Repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:    sess.ID,
		EndedAt:      time.Now(),
		Status:       status,
		StopReason:   reason,
		SegmentCount: segments,
	}); err != nil {
		slog.Error("failed to complete session record", "session_id", sess.ID, "error", err)
	}
}

func spawn(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

// await reports whether done closed within timeout.
func await(step string, done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		slog.Warn("shutdown step timed out", "step", step, "timeout", timeout)
		return false
	}
}
