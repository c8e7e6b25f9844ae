// Package upload mirrors transcripts to remote stores off the transcription
// path.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/livescribe/internal/queue"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/segment"
	"golang.org/x/time/rate"
)

type Task struct {
	Entry      remote.Entry
	Segment    segment.Segment
	EnqueuedAt time.Time
}

// Error is a failed delivery. The task is dropped after it is logged.
type Error struct {
	Segment string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Segment, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	RatePerMinute int
	CallTimeout   time.Duration
}

// Worker is the single consumer of the upload queue.
type Worker struct {
	store       remote.Store
	queue       *queue.Queue[Task]
	limiter     *rate.Limiter
	callTimeout time.Duration

	delivered atomic.Int64
	failed    atomic.Int64
}

func NewWorker(store remote.Store, cfg Config) *Worker {
	return &Worker{
		store:       store,
		queue:       queue.New[Task](),
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		callTimeout: cfg.CallTimeout,
	}
}

// Enqueue never blocks. It reports false once the worker has been closed.
func (w *Worker) Enqueue(t Task) bool {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	return w.queue.Push(t)
}

// Close stops accepting tasks. Run returns after the queue is empty.
func (w *Worker) Close() {
	w.queue.Close()
}

func (w *Worker) Pending() int {
	return w.queue.Len()
}

func (w *Worker) Delivered() int64 {
	return w.delivered.Load()
}

func (w *Worker) Failed() int64 {
	return w.failed.Load()
}

func (w *Worker) Run(ctx context.Context) {
	slog.Info("upload worker started", "store", w.store.Name())
	for {
		task, ok := w.queue.Pop(ctx)
		if !ok || ctx.Err() != nil {
			slog.Info("upload worker stopped",
				"delivered", w.delivered.Load(),
				"failed", w.failed.Load(),
				"abandoned", w.queue.Len(),
			)
			return
		}
		if err := w.limiter.Wait(ctx); err != nil {
			w.failed.Add(1)
			slog.Warn("upload dropped", "error", &Error{Segment: task.Entry.Segment, Err: err})
			continue
		}
		w.deliver(ctx, task)
	}
}

func (w *Worker) deliver(ctx context.Context, task Task) {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()
	started := time.Now()
	if err := w.store.Append(callCtx, task.Entry); err != nil {
		w.failed.Add(1)
		slog.Warn("upload failed; dropping task",
			"error", &Error{Segment: task.Entry.Segment, Err: err},
			"queued_for", started.Sub(task.EnqueuedAt),
		)
		return
	}
	w.delivered.Add(1)
	slog.Debug("upload delivered",
		"segment", task.Entry.Segment,
		"store", w.store.Name(),
		"took", time.Since(started),
		"queued_for", started.Sub(task.EnqueuedAt),
	)
}
