package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const copyBufferBytes = 32 * 1024

// Capturer is the only writer of a session's buffer file. It appends raw PCM
// and publishes how many bytes have been written so readers never look past
// data the writer has handed to the OS.
type Capturer struct {
	source      Source
	path        string
	stopTimeout time.Duration

	flushed  atomic.Int64
	stopping atomic.Bool

	mu      sync.Mutex
	started bool
	stream  io.ReadCloser
	file    *os.File
	done    chan struct{}
	err     error
}

func NewCapturer(source Source, bufferPath string, stopTimeout time.Duration) *Capturer {
	return &Capturer{
		source:      source,
		path:        bufferPath,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
}

func (c *Capturer) Start(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("capturer already started")
	}

	stream, err := c.source.Open(ctx, url)
	if err != nil {
		var unavailable *SourceUnavailableError
		if errors.As(err, &unavailable) {
			return err
		}
		return &SourceUnavailableError{URL: url, Err: err}
	}
	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = stream.Close()
		return fmt.Errorf("create capture buffer: %w", err)
	}

	c.started = true
	c.stream = stream
	c.file = file
	slog.Info("capture started", "buffer", c.path)
	go c.copyLoop(stream, file)
	return nil
}

func (c *Capturer) copyLoop(stream io.Reader, file *os.File) {
	defer close(c.done)
	buf := make([]byte, copyBufferBytes)
	var lastLogged int64
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				c.finish(fmt.Errorf("write capture buffer: %w", err))
				return
			}
			total := c.flushed.Add(int64(n))
			if total-lastLogged >= 10*1024*1024 {
				slog.Debug("capture buffer growing", "buffer", c.path, "bytes", total)
				lastLogged = total
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				readErr = io.ErrUnexpectedEOF
			}
			c.finish(readErr)
			return
		}
	}
}

func (c *Capturer) finish(cause error) {
	if c.stopping.Load() {
		slog.Info("capture writer exited", "buffer", c.path, "bytes", c.flushed.Load())
		return
	}
	err := &CaptureTerminatedError{FlushedBytes: c.flushed.Load(), Err: cause}
	slog.Error("capture writer died", "error", err, "buffer", c.path)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Stop terminates the source and waits, bounded by the stop timeout, for the
// writer to exit before closing the buffer.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	stream := c.stream
	c.mu.Unlock()

	c.stopping.Store(true)
	if err := stream.Close(); err != nil {
		slog.Warn("failed to close audio source", "error", err)
	}

	var stopErr error
	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		// The buffer is closed under the stuck writer so its next write fails
		// instead of landing in a file the caller is about to remove.
		stopErr = fmt.Errorf("capture writer did not exit within %s", c.stopTimeout)
		slog.Error("abandoning capture writer", "buffer", c.path, "bytes", c.flushed.Load(), "error", stopErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return stopErr
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return errors.Join(stopErr, fmt.Errorf("close capture buffer: %w", err))
	}
	return stopErr
}

// Done is closed when the writer goroutine exits for any reason.
func (c *Capturer) Done() <-chan struct{} {
	return c.done
}

// Err returns a *CaptureTerminatedError if the writer died on its own.
func (c *Capturer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Capturer) Path() string {
	return c.path
}

func (c *Capturer) FlushedBytes() int64 {
	return c.flushed.Load()
}
