package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/livescribe/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	// Streaming requests carry at most 15 KiB of audio each.
	streamChunkBytes = 15 * 1024
)

var ErrStreamLimitExceeded = errors.New("cloud speech stream limit exceeded")

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

// CloudSpeechModel streams a whole segment file through Cloud Speech v2 and
// yields each final result as an utterance.
type CloudSpeechModel struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string
}

func NewCloudSpeechModel(cfg CloudSpeechConfig) *CloudSpeechModel {
	return &CloudSpeechModel{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (m *CloudSpeechModel) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", m.projectID, m.location)
}

func (m *CloudSpeechModel) clientOptions() ([]option.ClientOption, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(m.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if m.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", m.location, speechAPIEndpointPort)))
	}
	return opts, nil
}

func (m *CloudSpeechModel) streamingConfig(language string) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: m.recognizer(),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         m.model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
						AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
					},
					Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
				},
			},
		},
	}
}

func (m *CloudSpeechModel) Transcribe(ctx context.Context, path, language string) iter.Seq2[transcriber.Utterance, error] {
	return func(yield func(transcriber.Utterance, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		opts, err := m.clientOptions()
		if err != nil {
			yield(transcriber.Utterance{}, err)
			return
		}
		client, err := speech.NewClient(ctx, opts...)
		if err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("create speech client: %w", err))
			return
		}
		defer client.Close()

		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("open recognize stream: %w", err))
			return
		}
		if err := stream.Send(m.streamingConfig(language)); err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("send streaming config: %w", err))
			return
		}
		slog.Debug("cloud speech stream initialized", "path", path, "location", m.location, "model", m.model, "language", language)

		sendErr := make(chan error, 1)
		go func() {
			sendErr <- sendFile(stream, path)
		}()

		var conv resultConverter
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(transcriber.Utterance{}, classifyStreamError(err))
				return
			}
			for _, u := range conv.utterances(resp) {
				if !yield(u, nil) {
					return
				}
			}
		}
		if err := <-sendErr; err != nil {
			yield(transcriber.Utterance{}, err)
		}
	}
}

func sendFile(stream speechpb.Speech_StreamingRecognizeClient, path string) error {
	f, err := os.Open(path)
	if err != nil {
		_ = stream.CloseSend()
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	buf := make([]byte, streamChunkBytes)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
					Audio: append([]byte(nil), buf[:n]...),
				},
			}
			if serr := stream.Send(req); serr != nil {
				// The receive side reports the stream error.
				if errors.Is(serr, io.EOF) {
					return nil
				}
				return fmt.Errorf("send audio: %w", serr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = stream.CloseSend()
			return fmt.Errorf("read audio: %w", err)
		}
	}
	return stream.CloseSend()
}

// resultConverter turns final streaming results into utterances. Each result
// starts where the previous final result ended.
type resultConverter struct {
	lastEnd time.Duration
}

func (c *resultConverter) utterances(resp *speechpb.StreamingRecognizeResponse) []transcriber.Utterance {
	var out []transcriber.Utterance
	for _, result := range resp.GetResults() {
		if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
			continue
		}
		end := result.GetResultEndOffset().AsDuration()
		u := transcriber.Utterance{
			Start: c.lastEnd,
			End:   end,
			Text:  result.GetAlternatives()[0].GetTranscript(),
		}
		c.lastEnd = end
		out = append(out, u)
	}
	return out
}

func classifyStreamError(err error) error {
	st, ok := status.FromError(err)
	if ok && st.Code() == codes.Aborted {
		msg := strings.ToLower(st.Message())
		if strings.Contains(msg, "max duration") || strings.Contains(msg, "stream timed out") {
			return fmt.Errorf("%w: %s", ErrStreamLimitExceeded, st.Message())
		}
	}
	return fmt.Errorf("receive recognition results: %w", err)
}
