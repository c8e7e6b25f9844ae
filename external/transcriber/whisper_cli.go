package transcriber

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os/exec"
	"time"

	"github.com/foxseedlab/livescribe/external/process"
	"github.com/foxseedlab/livescribe/internal/transcriber"
)

//go:embed assets/faster_whisper.py
var fasterWhisperScript string

const (
	whisperBeamSize    = 5
	stderrTailMaxBytes = 4096
	// Bounds Wait when a killed interpreter leaves children holding stderr.
	whisperWaitDelay = time.Second
)

type WhisperCLIConfig struct {
	Python      string
	Model       string
	Device      string
	ComputeType string
}

// WhisperCLIModel runs faster-whisper in a Python subprocess, one process per
// file, reading one JSON utterance per output line.
type WhisperCLIModel struct {
	cfg WhisperCLIConfig
}

func NewWhisperCLIModel(cfg WhisperCLIConfig) *WhisperCLIModel {
	return &WhisperCLIModel{cfg: cfg}
}

type whisperLine struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (m *WhisperCLIModel) args(path, language string) []string {
	args := []string{
		"-c", fasterWhisperScript,
		"--model", m.cfg.Model,
		"--beam-size", fmt.Sprint(whisperBeamSize),
	}
	if m.cfg.Device != "" {
		args = append(args, "--device", m.cfg.Device)
	}
	if m.cfg.ComputeType != "" {
		args = append(args, "--compute-type", m.cfg.ComputeType)
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	return append(args, path)
}

func (m *WhisperCLIModel) Transcribe(ctx context.Context, path, language string) iter.Seq2[transcriber.Utterance, error] {
	return func(yield func(transcriber.Utterance, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		cmd := exec.CommandContext(ctx, m.cfg.Python, m.args(path, language)...)
		cmd.WaitDelay = whisperWaitDelay
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("whisper stdout pipe: %w", err))
			return
		}
		stderr := process.NewTailBuffer(stderrTailMaxBytes)
		cmd.Stderr = stderr
		if err := cmd.Start(); err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("start whisper: %w", err))
			return
		}
		slog.Debug("whisper process started", "path", path, "model", m.cfg.Model, "pid", cmd.Process.Pid)

		dec := json.NewDecoder(stdout)
		for {
			var line whisperLine
			if err := dec.Decode(&line); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				cancel()
				_ = cmd.Wait()
				yield(transcriber.Utterance{}, fmt.Errorf("decode whisper output: %w", err))
				return
			}
			u := transcriber.Utterance{
				Start: secondsToDuration(line.Start),
				End:   secondsToDuration(line.End),
				Text:  line.Text,
			}
			if !yield(u, nil) {
				cancel()
				_ = cmd.Wait()
				return
			}
		}
		if err := cmd.Wait(); err != nil {
			yield(transcriber.Utterance{}, fmt.Errorf("whisper exited: %w: %s", err, stderr.String()))
		}
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
