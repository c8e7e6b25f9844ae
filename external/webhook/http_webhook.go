package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foxseedlab/livescribe/internal/remote"
)

const TranscriptWebhookSchemaVersion = 1

type TranscriptWebhookPayload struct {
	SchemaVersion   int     `json:"schema_version"`
	SessionID       string  `json:"session_id"`
	SessionStartAt  string  `json:"session_start_at,omitempty"`
	Segment         string  `json:"segment"`
	Sequence        int     `json:"sequence"`
	DurationSeconds float64 `json:"duration_seconds"`
	UtteranceCount  int     `json:"utterance_count"`
	Degraded        bool    `json:"degraded"`
	TranscribedAt   string  `json:"transcribed_at"`
	Transcript      string  `json:"transcript"`
	TimestampedText string  `json:"timestamped_transcript"`
}

// HTTPStore posts every entry as JSON to a webhook URL.
type HTTPStore struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPStore(webhookURL string) *HTTPStore {
	return &HTTPStore{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

func (s *HTTPStore) Name() string {
	return "webhook"
}

func (s *HTTPStore) Append(ctx context.Context, e remote.Entry) error {
	b, err := json.Marshal(buildPayload(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildPayload(e remote.Entry) TranscriptWebhookPayload {
	p := TranscriptWebhookPayload{
		SchemaVersion:   TranscriptWebhookSchemaVersion,
		SessionID:       e.SessionID,
		Segment:         e.Segment,
		Sequence:        e.Sequence,
		DurationSeconds: e.Duration.Seconds(),
		UtteranceCount:  e.Utterances,
		Degraded:        e.Degraded,
		TranscribedAt:   e.TranscribedAt.Format(time.RFC3339),
		Transcript:      e.Text,
		TimestampedText: e.TimestampedText,
	}
	if !e.SessionStarted.IsZero() {
		p.SessionStartAt = e.SessionStarted.Format(time.RFC3339)
	}
	return p
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
