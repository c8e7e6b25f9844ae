package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrSourceUnavailable = errors.New("audio source unavailable")

// SourceUnavailableError means the live feed could not produce data. It is
// fatal to the session and never retried.
type SourceUnavailableError struct {
	URL string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.URL, e.Err)
}

func (e *SourceUnavailableError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// CaptureTerminatedError means the buffer writer stopped while the session was
// still running.
type CaptureTerminatedError struct {
	FlushedBytes int64
	Err          error
}

func (e *CaptureTerminatedError) Error() string {
	return fmt.Sprintf("capture terminated unexpectedly after %d bytes: %v", e.FlushedBytes, e.Err)
}

func (e *CaptureTerminatedError) Unwrap() error {
	return e.Err
}

// Source opens a continuous stream of decoded mono PCM for a live feed.
// Open must fail when the feed is not live.
type Source interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Resolver turns a page URL into a directly readable media URL.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}
