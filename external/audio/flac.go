package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const flacBlockSize = 4096

type FLACEncoder struct{}

func NewFLACEncoder() audio.SegmentEncoder {
	return FLACEncoder{}
}

func (FLACEncoder) Extension() string {
	return "flac"
}

// writerOnly hides Close and Seek so the flac encoder never closes the
// segment file the cutter still has to sync.
type writerOnly struct {
	w io.Writer
}

func (o writerOnly) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (FLACEncoder) Encode(w io.Writer, pcm io.Reader, pcmBytes int64, format audio.PCMFormat) error {
	if format.Channels != 1 || format.BitsPerSample != 16 {
		return fmt.Errorf("flac: only mono 16-bit pcm is supported, got %d ch / %d bit", format.Channels, format.BitsPerSample)
	}
	totalSamples := pcmBytes / format.FrameBytes()
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(format.SampleRate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(totalSamples),
	}
	enc, err := flac.NewEncoder(writerOnly{w: w}, info)
	if err != nil {
		return fmt.Errorf("flac: create encoder: %w", err)
	}

	raw := make([]byte, flacBlockSize*2)
	remaining := totalSamples
	for remaining > 0 {
		n := min(remaining, flacBlockSize)
		buf := raw[:n*2]
		if _, err := io.ReadFull(pcm, buf); err != nil {
			_ = enc.Close()
			return fmt.Errorf("flac: read pcm: %w", err)
		}
		samples := make([]int32, n)
		for i := range samples {
			samples[i] = int32(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		}
		if err := enc.WriteFrame(monoFrame(samples, format.SampleRate)); err != nil {
			_ = enc.Close()
			return fmt.Errorf("flac: write frame: %w", err)
		}
		remaining -= n
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flac: close encoder: %w", err)
	}
	return nil
}

func monoFrame(samples []int32, sampleRate int) *frame.Frame {
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(samples)),
			SampleRate:    uint32(sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{
			{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			},
		},
	}
}
