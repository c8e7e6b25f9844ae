package session

import (
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/segment"
	"github.com/foxseedlab/livescribe/internal/transcriber"
)

func TestBuildRemoteEntry(t *testing.T) {
	startedAt := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	sess := &CaptureSession{ID: "session-1", Timestamp: "20250301_180000", StartedAt: startedAt}
	res := &transcriber.Result{
		Segment: segment.Segment{
			Sequence: 2,
			Path:     "/data/audio_chunks/chunk_20250301_180000_002.wav",
			Degraded: true,
		},
		Utterances: []transcriber.Utterance{
			{Start: 0, End: 2500 * time.Millisecond, Text: "hola"},
			{Start: 3 * time.Second, End: 4 * time.Second, Text: "adiós"},
		},
		Duration:      300 * time.Second,
		Text:          "hola adiós",
		TranscribedAt: startedAt.Add(16 * time.Minute),
	}

	entry := buildRemoteEntry(sess, res)
	if entry.SessionID != "session-1" || !entry.SessionStarted.Equal(startedAt) {
		t.Fatalf("unexpected session fields: %+v", entry)
	}
	if entry.Segment != "chunk_20250301_180000_002.wav" || entry.Sequence != 2 {
		t.Fatalf("unexpected segment fields: %+v", entry)
	}
	if entry.Utterances != 2 || entry.Text != "hola adiós" || !entry.Degraded {
		t.Fatalf("unexpected content fields: %+v", entry)
	}
	if entry.TimestampedText != "[0.0s - 2.5s] hola\n[3.0s - 4.0s] adiós" {
		t.Fatalf("unexpected timestamped text: %q", entry.TimestampedText)
	}
}

func TestSessionStatusAndReason(t *testing.T) {
	if sessionStatus(nil) != repository.SessionStatusCompleted {
		t.Fatal("expected completed without error")
	}
	err := errors.New("capture died")
	if sessionStatus(err) != repository.SessionStatusFailed {
		t.Fatal("expected failed with error")
	}
	if stopReason(err, "fallback") != "capture died" || stopReason(nil, "fallback") != "fallback" {
		t.Fatal("unexpected stop reason")
	}
}

func TestNewCaptureSession(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	startedAt := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	sess := newCaptureSession(startedAt, loc, "/data")
	if sess.Timestamp != "20250301_180000" {
		t.Fatalf("unexpected timestamp: %s", sess.Timestamp)
	}
	if sess.BufferPath != "/data/capture_20250301_180000.pcm" {
		t.Fatalf("unexpected buffer path: %s", sess.BufferPath)
	}
	if sess.ID == "" || sess.State() != StateNotStarted {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if other := newCaptureSession(startedAt, loc, ""); other.BufferPath != "" || other.ID == sess.ID {
		t.Fatalf("unexpected second session: %+v", other)
	}
}
