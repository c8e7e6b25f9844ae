package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/mewkiz/flac"
)

var errUnknownLength = errors.New("audio length unknown")

// FileProber reads durations from WAV and FLAC headers without decoding audio.
type FileProber struct{}

func NewFileProber() audio.DurationProber {
	return FileProber{}
}

func (FileProber) Duration(path string) (time.Duration, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wavDuration(path)
	case ".flac":
		return flacDuration(path)
	default:
		return 0, fmt.Errorf("probe %s: unsupported extension", filepath.Base(path))
	}
}

func flacDuration(path string) (time.Duration, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return 0, fmt.Errorf("flac: open %s: %w", filepath.Base(path), err)
	}
	defer stream.Close()

	info := stream.Info
	if info.SampleRate == 0 || info.NSamples == 0 {
		return 0, fmt.Errorf("flac: %s: %w", filepath.Base(path), errUnknownLength)
	}
	return time.Duration(info.NSamples * uint64(time.Second) / uint64(info.SampleRate)), nil
}

// wavDuration walks the RIFF chunks for the fmt byte rate and the data size.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("wav: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var riff struct {
		ID   [4]byte
		Size uint32
		Form [4]byte
	}
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return 0, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Form[:]) != "WAVE" {
		return 0, fmt.Errorf("wav: %s is not a RIFF/WAVE file", filepath.Base(path))
	}

	var byteRate uint32
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(f, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("wav: %s: no data chunk", filepath.Base(path))
			}
			return 0, fmt.Errorf("wav: read chunk: %w", err)
		}
		switch string(chunk.ID[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return 0, fmt.Errorf("wav: fmt chunk too short (%d bytes)", chunk.Size)
			}
			var fmtHead [12]byte
			if _, err := io.ReadFull(f, fmtHead[:]); err != nil {
				return 0, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtHead[8:12])
			if _, err := f.Seek(int64(chunk.Size)-12+int64(chunk.Size%2), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("wav: skip fmt chunk: %w", err)
			}
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("wav: %s: %w", filepath.Base(path), errUnknownLength)
			}
			return time.Duration(uint64(chunk.Size) * uint64(time.Second) / uint64(byteRate)), nil
		default:
			if _, err := f.Seek(int64(chunk.Size)+int64(chunk.Size%2), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("wav: skip %q chunk: %w", chunk.ID[:], err)
			}
		}
	}
}
