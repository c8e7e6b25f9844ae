package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/livescribe/external/process"
	"github.com/foxseedlab/livescribe/internal/capture"
)

const (
	stderrTailBytes  = 4096
	processWaitDelay = 2 * time.Second
)

type FFmpegConfig struct {
	Binary         string
	SampleRate     int
	StartupTimeout time.Duration
	StopGrace      time.Duration
}

// FFmpegSource decodes a live feed to mono s16le PCM with an ffmpeg child
// process.
type FFmpegSource struct {
	cfg FFmpegConfig
}

func NewFFmpegSource(cfg FFmpegConfig) *FFmpegSource {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	return &FFmpegSource{cfg: cfg}
}

func ffmpegArgs(url string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", url,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

// Open starts ffmpeg and waits for the first decoded byte. A feed that is not
// live, or produces nothing within the startup timeout, is reported as
// *capture.SourceUnavailableError.
func (s *FFmpegSource) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	stderr := process.NewTailBuffer(stderrTailBytes)
	cmd := exec.Command(s.cfg.Binary, ffmpegArgs(url, s.cfg.SampleRate)...)
	cmd.Stdout = pw
	cmd.Stderr = stderr
	cmd.WaitDelay = processWaitDelay
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, &capture.SourceUnavailableError{URL: url, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}
	_ = pw.Close()

	st := &ffmpegStream{
		cmd:       cmd,
		pipe:      pr,
		stderr:    stderr,
		stopGrace: s.cfg.StopGrace,
		exited:    make(chan struct{}),
	}
	go func() {
		st.waitErr = cmd.Wait()
		close(st.exited)
	}()
	slog.Info("ffmpeg started", "pid", cmd.Process.Pid, "sample_rate", s.cfg.SampleRate)

	first, err := st.probe(ctx, s.cfg.StartupTimeout)
	if err != nil {
		_ = st.Close()
		return nil, &capture.SourceUnavailableError{URL: url, Err: err}
	}
	st.reader = io.MultiReader(bytes.NewReader(first), pr)
	return st, nil
}

type ffmpegStream struct {
	cmd       *exec.Cmd
	pipe      *os.File
	reader    io.Reader
	stderr    *process.TailBuffer
	stopGrace time.Duration

	exited  chan struct{}
	waitErr error

	closing   atomic.Bool
	closeOnce sync.Once
}

func (s *ffmpegStream) probe(ctx context.Context, timeout time.Duration) ([]byte, error) {
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := io.ReadFull(s.pipe, buf)
		ch <- result{b: buf, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			<-s.exited
			return nil, s.exitError(r.err)
		}
		return r.b, nil
	case <-timer.C:
		return nil, fmt.Errorf("no audio within %s: %s", timeout, s.stderr.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if errors.Is(err, io.EOF) && !s.closing.Load() {
		<-s.exited
		if s.waitErr != nil {
			return n, s.exitError(s.waitErr)
		}
	}
	return n, err
}

func (s *ffmpegStream) exitError(err error) error {
	if tail := s.stderr.String(); tail != "" {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, tail)
	}
	return fmt.Errorf("ffmpeg exited: %w", err)
}

// Close asks ffmpeg to stop, killing it after the grace period.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		select {
		case <-s.exited:
		default:
			_ = s.cmd.Process.Signal(os.Interrupt)
			select {
			case <-s.exited:
			case <-time.After(s.stopGrace):
				slog.Warn("ffmpeg did not exit after interrupt; killing", "pid", s.cmd.Process.Pid)
				_ = s.cmd.Process.Kill()
				<-s.exited
			}
		}
		_ = s.pipe.Close()
	})
	return nil
}
