package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/foxseedlab/livescribe/internal/audio"
)

const wavHeaderBytes = 44

type WAVEncoder struct{}

func NewWAVEncoder() audio.SegmentEncoder {
	return WAVEncoder{}
}

func (WAVEncoder) Extension() string {
	return "wav"
}

func (WAVEncoder) Encode(w io.Writer, pcm io.Reader, pcmBytes int64, format audio.PCMFormat) error {
	if pcmBytes < 0 || pcmBytes > int64(^uint32(0))-wavHeaderBytes {
		return fmt.Errorf("wav: data length %d out of range", pcmBytes)
	}
	if err := writeWAVHeader(w, uint32(pcmBytes), format); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	n, err := io.CopyN(w, pcm, pcmBytes)
	if err != nil {
		return fmt.Errorf("wav: copy pcm (%d of %d bytes): %w", n, pcmBytes, err)
	}
	return nil
}

func writeWAVHeader(w io.Writer, dataLen uint32, f audio.PCMFormat) error {
	blockAlign := uint16(f.FrameBytes())
	h := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    blockAlign,
		BitsPerSample: uint16(f.BitsPerSample),
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataLen,
	}
	return binary.Write(w, binary.LittleEndian, h)
}
