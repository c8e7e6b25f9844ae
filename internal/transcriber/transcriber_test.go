package transcriber

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/foxseedlab/livescribe/internal/clock"
	"github.com/foxseedlab/livescribe/internal/segment"
)

type fakeModel struct {
	utterances map[string][]Utterance
	failAfter  map[string]error
	panics     map[string]bool
	calls      []string
}

func (m *fakeModel) Transcribe(_ context.Context, path, language string) iter.Seq2[Utterance, error] {
	m.calls = append(m.calls, path+"|"+language)
	return func(yield func(Utterance, error) bool) {
		if m.panics[path] {
			panic("decoder crashed")
		}
		for _, u := range m.utterances[path] {
			if !yield(u, nil) {
				return
			}
		}
		if err := m.failAfter[path]; err != nil {
			yield(Utterance{}, err)
		}
	}
}

type fakeProber struct {
	durations map[string]time.Duration
}

func (p fakeProber) Duration(path string) (time.Duration, error) {
	d, ok := p.durations[path]
	if !ok {
		return 0, errors.New("unreadable header")
	}
	return d, nil
}

func newTestEngine(m Model) *Engine {
	return NewEngine(m, nil, "es", clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)))
}

func TestEngine_AggregatesUtterances(t *testing.T) {
	m := &fakeModel{utterances: map[string][]Utterance{
		"a.wav": {
			{Start: 0, End: 2500 * time.Millisecond, Text: " hola "},
			{Start: 2500 * time.Millisecond, End: 3 * time.Second, Text: "   "},
			{Start: 3 * time.Second, End: 7 * time.Second, Text: "buenas tardes"},
		},
	}}
	seg := segment.Segment{Sequence: 2, Start: 600 * time.Second, End: 900 * time.Second, Path: "a.wav", Status: segment.StatusDispatched}

	res, err := newTestEngine(m).Transcribe(context.Background(), seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(res.Utterances))
	}
	if res.Text != "hola buenas tardes" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.Duration != 300*time.Second {
		t.Fatalf("expected window duration, got %s", res.Duration)
	}
	if res.Segment.Status != segment.StatusTranscribed {
		t.Fatalf("unexpected status: %s", res.Segment.Status)
	}
	if m.calls[0] != "a.wav|es" {
		t.Fatalf("unexpected model call: %s", m.calls[0])
	}
}

func TestEngine_DurationFallsBackToLastUtterance(t *testing.T) {
	m := &fakeModel{utterances: map[string][]Utterance{
		"b.wav": {{Start: time.Second, End: 42 * time.Second, Text: "fin"}},
	}}
	res, err := newTestEngine(m).Transcribe(context.Background(), segment.FromPath("b.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 42*time.Second {
		t.Fatalf("expected 42s, got %s", res.Duration)
	}
}

func TestEngine_DurationFromFile(t *testing.T) {
	m := &fakeModel{utterances: map[string][]Utterance{
		"c.wav": {{Start: 0, End: time.Second, Text: "corto"}},
		"d.wav": {{Start: 0, End: 4 * time.Second, Text: "sin cabecera"}},
	}}
	prober := fakeProber{durations: map[string]time.Duration{"c.wav": 10 * time.Second}}
	e := NewEngine(m, prober, "es", clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)))

	res, err := e.Transcribe(context.Background(), segment.FromPath("c.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 10*time.Second {
		t.Fatalf("expected file length 10s, got %s", res.Duration)
	}

	res, err = e.Transcribe(context.Background(), segment.FromPath("d.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 4*time.Second {
		t.Fatalf("expected last utterance end when the header is unreadable, got %s", res.Duration)
	}

	windowed := segment.Segment{Sequence: 0, Start: 0, End: 300 * time.Second, Path: "c.wav"}
	res, err = e.Transcribe(context.Background(), windowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 300*time.Second {
		t.Fatalf("expected window to win over file length, got %s", res.Duration)
	}
}

func TestEngine_EmptyResult(t *testing.T) {
	res, err := newTestEngine(&fakeModel{}).Transcribe(context.Background(), segment.FromPath("silence.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Empty() || res.Text != "" {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestEngine_ModelErrorIsTranscriptionError(t *testing.T) {
	cause := errors.New("corrupt audio")
	m := &fakeModel{
		utterances: map[string][]Utterance{"bad.wav": {{Text: "partial"}}},
		failAfter:  map[string]error{"bad.wav": cause},
	}
	res, err := newTestEngine(m).Transcribe(context.Background(), segment.FromPath("bad.wav"))
	if res != nil {
		t.Fatal("expected no result on failure")
	}
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be wrapped")
	}
	if te.Segment.Status != segment.StatusFailed {
		t.Fatalf("expected failed status, got %s", te.Segment.Status)
	}
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	m := &fakeModel{panics: map[string]bool{"boom.wav": true}}
	_, err := newTestEngine(m).Transcribe(context.Background(), segment.FromPath("boom.wav"))
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
}

func TestEngine_FailureDoesNotAffectNextSegment(t *testing.T) {
	m := &fakeModel{
		utterances: map[string][]Utterance{"ok.wav": {{End: time.Second, Text: "sigue"}}},
		failAfter:  map[string]error{"bad.wav": errors.New("unsupported format")},
	}
	e := newTestEngine(m)
	if _, err := e.Transcribe(context.Background(), segment.FromPath("bad.wav")); err == nil {
		t.Fatal("expected failure for bad segment")
	}
	res, err := e.Transcribe(context.Background(), segment.FromPath("ok.wav"))
	if err != nil || res.Text != "sigue" {
		t.Fatalf("next segment should succeed, got %+v, %v", res, err)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(&fakeModel{}).Transcribe(ctx, segment.FromPath("a.wav"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
