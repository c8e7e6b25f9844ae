package session

import (
	"strings"

	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/transcriber"
	"github.com/foxseedlab/livescribe/internal/transcript"
)

func buildRemoteEntry(sess *CaptureSession, res *transcriber.Result) remote.Entry {
	lines := make([]string, 0, len(res.Utterances))
	for _, u := range res.Utterances {
		lines = append(lines, transcript.FormatUtterance(u))
	}
	return remote.Entry{
		SessionID:       sess.ID,
		SessionStarted:  sess.StartedAt,
		Segment:         res.Segment.Name(),
		Sequence:        res.Segment.Sequence,
		Duration:        res.Duration,
		Utterances:      len(res.Utterances),
		Text:            res.Text,
		TimestampedText: strings.Join(lines, "\n"),
		TranscribedAt:   res.TranscribedAt,
		Degraded:        res.Segment.Degraded,
	}
}

func sessionStatus(err error) repository.SessionStatus {
	if err != nil {
		return repository.SessionStatusFailed
	}
	return repository.SessionStatusCompleted
}

func stopReason(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
