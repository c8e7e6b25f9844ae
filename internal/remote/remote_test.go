package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type fakeStore struct {
	name  string
	err   error
	calls atomic.Int32
}

func (s *fakeStore) Name() string { return s.name }

func (s *fakeStore) Append(context.Context, Entry) error {
	s.calls.Add(1)
	return s.err
}

func TestMulti_AppendsToEveryStore(t *testing.T) {
	a := &fakeStore{name: "a"}
	b := &fakeStore{name: "b", err: errors.New("network down")}
	c := &fakeStore{name: "c"}
	m := NewMulti(a, b, c)

	err := m.Append(context.Background(), Entry{Segment: "chunk_x_000.wav"})
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Store != "b" {
		t.Fatalf("expected StoreError for b, got %v", err)
	}
	for _, s := range []*fakeStore{a, b, c} {
		if s.calls.Load() != 1 {
			t.Fatalf("store %s called %d times", s.name, s.calls.Load())
		}
	}
}

func TestMulti_NoStores(t *testing.T) {
	m := NewMulti()
	if err := m.Append(context.Background(), Entry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "multi[]" || m.Len() != 0 {
		t.Fatalf("unexpected multi: %s %d", m.Name(), m.Len())
	}
}

type checkingStore struct {
	fakeStore
	checkErr error
}

func (s *checkingStore) Check(context.Context) error { return s.checkErr }

func TestMulti_Check(t *testing.T) {
	ok := &checkingStore{fakeStore: fakeStore{name: "ok"}}
	broken := &checkingStore{fakeStore: fakeStore{name: "broken"}, checkErr: errors.New("channel not found")}
	plain := &fakeStore{name: "plain"}

	if err := NewMulti(ok, plain).Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := NewMulti(ok, broken, plain).Check(context.Background())
	var se *StoreError
	if !errors.As(err, &se) || se.Store != "broken" {
		t.Fatalf("expected StoreError for broken, got %v", err)
	}
}
