package transcriber

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/clock"
	"github.com/foxseedlab/livescribe/internal/segment"
)

// Utterance is one recognized span of speech, with offsets relative to the
// start of the audio file.
type Utterance struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Model is a speech-to-text backend. The sequence is lazy: utterances are
// yielded as the backend produces them, and a non-nil error ends it.
type Model interface {
	Transcribe(ctx context.Context, path, language string) iter.Seq2[Utterance, error]
}

type Result struct {
	Segment       segment.Segment
	Utterances    []Utterance
	Duration      time.Duration
	Text          string
	TranscribedAt time.Time
}

func (r *Result) Empty() bool {
	return len(r.Utterances) == 0
}

type TranscriptionError struct {
	Segment segment.Segment
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Segment.Name(), e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

type Engine struct {
	model    Model
	prober   audio.DurationProber
	language string
	clock    clock.Clock
}

// NewEngine builds an Engine. prober may be nil, in which case segments
// without a capture window take their length from the last utterance.
func NewEngine(model Model, prober audio.DurationProber, language string, clk clock.Clock) *Engine {
	return &Engine{model: model, prober: prober, language: language, clock: clk}
}

// Transcribe runs the model over one segment. Any model failure, including a
// panic, comes back as a *TranscriptionError carrying the segment marked
// Failed.
func (e *Engine) Transcribe(ctx context.Context, seg segment.Segment) (res *Result, err error) {
	startedAt := e.clock.Now()
	fail := func(cause error) (*Result, error) {
		seg.Status = segment.StatusFailed
		return nil, &TranscriptionError{Segment: seg, Err: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = fail(fmt.Errorf("model panicked: %v", r))
		}
	}()

	var utterances []Utterance
	texts := make([]string, 0)
	for u, uerr := range e.model.Transcribe(ctx, seg.Path, e.language) {
		if uerr != nil {
			return fail(uerr)
		}
		u.Text = strings.TrimSpace(u.Text)
		if u.Text == "" {
			continue
		}
		utterances = append(utterances, u)
		texts = append(texts, u.Text)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fail(ctxErr)
	}

	duration := e.duration(seg, utterances)
	seg.Status = segment.StatusTranscribed
	res = &Result{
		Segment:       seg,
		Utterances:    utterances,
		Duration:      duration,
		Text:          strings.Join(texts, " "),
		TranscribedAt: e.clock.Now(),
	}
	slog.Info("segment transcribed",
		"segment", seg.Name(),
		"utterances", len(utterances),
		"duration", duration,
		"took", res.TranscribedAt.Sub(startedAt),
	)
	return res, nil
}

// duration prefers the capture window, then the file's own length, then the
// end of the last utterance.
func (e *Engine) duration(seg segment.Segment, utterances []Utterance) time.Duration {
	if d := seg.Duration(); d > 0 {
		return d
	}
	if e.prober != nil {
		d, err := e.prober.Duration(seg.Path)
		if err == nil && d > 0 {
			return d
		}
		slog.Debug("could not read audio length from file", "segment", seg.Name(), "error", err)
	}
	if len(utterances) > 0 {
		return utterances[len(utterances)-1].End
	}
	return 0
}
