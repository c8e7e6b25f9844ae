package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/foxseedlab/livescribe/external/process"
	"github.com/foxseedlab/livescribe/internal/capture"
)

// YTDLPResolver asks yt-dlp for the direct media URL of a stream page.
type YTDLPResolver struct {
	binary  string
	timeout time.Duration
}

func NewYTDLPResolver(binary string, timeout time.Duration) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{binary: binary, timeout: timeout}
}

func (r *YTDLPResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stderr := process.NewTailBuffer(stderrTailBytes)
	cmd := exec.CommandContext(ctx, r.binary, "-f", "bestaudio/best", "--no-playlist", "--get-url", pageURL)
	cmd.Stderr = stderr
	cmd.WaitDelay = processWaitDelay
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("yt-dlp timed out after %s", r.timeout)
		}
		return "", &capture.SourceUnavailableError{URL: pageURL, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", &capture.SourceUnavailableError{URL: pageURL, Err: errors.New("yt-dlp returned no media url")}
}

// CheckInstallation verifies the programs a session will run are on PATH.
func CheckInstallation(ffmpegBinary, ytdlpBinary string, needResolver bool) error {
	bins := []string{ffmpegBinary}
	if needResolver {
		bins = append(bins, ytdlpBinary)
	}
	return process.CheckInstalled(bins...)
}
