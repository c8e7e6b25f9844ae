package audio

import (
	"io"
	"time"
)

// PCMFormat describes the raw little-endian signed PCM held in a capture buffer.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func MonoPCM16(sampleRate int) PCMFormat {
	return PCMFormat{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

func (f PCMFormat) FrameBytes() int64 {
	return int64(f.Channels * f.BitsPerSample / 8)
}

func (f PCMFormat) BytesPerSecond() int64 {
	return int64(f.SampleRate) * f.FrameBytes()
}

// Offset returns the byte offset of d, truncated to a whole frame.
func (f PCMFormat) Offset(d time.Duration) int64 {
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return frames * f.FrameBytes()
}

// Duration returns the playback length of n bytes, ignoring any partial frame.
func (f PCMFormat) Duration(n int64) time.Duration {
	frames := n / f.FrameBytes()
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// SegmentEncoder turns a range of raw PCM into a standalone audio file.
type SegmentEncoder interface {
	Extension() string
	Encode(w io.Writer, pcm io.Reader, pcmBytes int64, format PCMFormat) error
}

// DurationProber reads the playback length of an encoded audio file.
type DurationProber interface {
	Duration(path string) (time.Duration, error)
}
