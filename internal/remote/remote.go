// Package remote defines the best-effort stores transcripts are mirrored to.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Entry is one transcribed segment as sent to a remote store.
type Entry struct {
	SessionID       string
	SessionStarted  time.Time
	Segment         string
	Sequence        int
	Duration        time.Duration
	Utterances      int
	Text            string
	TimestampedText string
	TranscribedAt   time.Time
	Degraded        bool
}

type Store interface {
	Name() string
	Append(ctx context.Context, entry Entry) error
}

type StoreError struct {
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %v", e.Store, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Multi appends each entry to all of its stores concurrently. One store
// failing does not stop the others.
type Multi struct {
	stores []Store
}

func NewMulti(stores ...Store) *Multi {
	return &Multi{stores: stores}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.stores))
	for _, s := range m.stores {
		names = append(names, s.Name())
	}
	return "multi[" + strings.Join(names, ",") + "]"
}

func (m *Multi) Len() int {
	return len(m.stores)
}

func (m *Multi) Append(ctx context.Context, entry Entry) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.stores {
		g.Go(func() error {
			if err := s.Append(ctx, entry); err != nil {
				mu.Lock()
				errs = append(errs, &StoreError{Store: s.Name(), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Checker is implemented by stores that can verify their destination before a
// session starts.
type Checker interface {
	Check(ctx context.Context) error
}

// Check runs Check on every store that supports it and reports all failures.
func (m *Multi) Check(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores {
		c, ok := s.(Checker)
		if !ok {
			continue
		}
		if err := c.Check(ctx); err != nil {
			errs = append(errs, &StoreError{Store: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
