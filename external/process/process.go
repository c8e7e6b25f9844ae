// Package process holds helpers shared by the external command backends
// (ffmpeg, yt-dlp, faster-whisper).
package process

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// TailBuffer keeps the last Max bytes written to it. It is safe for
// concurrent use, so it can serve as a command's Stderr while being read.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{Max: max}
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.Max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}

// CheckInstalled returns an error naming every binary not found on PATH.
func CheckInstalled(binaries ...string) error {
	var missing []string
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required programs not found in PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
