package segment

import (
	"testing"
	"time"
)

func TestFileName_RoundTrip(t *testing.T) {
	name := FileName("20250301_180000", 7, "wav")
	if name != "chunk_20250301_180000_007.wav" {
		t.Fatalf("unexpected name: %s", name)
	}
	ts, seq, ext, ok := ParseFileName(name)
	if !ok || ts != "20250301_180000" || seq != 7 || ext != "wav" {
		t.Fatalf("unexpected parse: %q %d %q %v", ts, seq, ext, ok)
	}
}

func TestFileName_WideSequence(t *testing.T) {
	name := FileName("s", 1234, "flac")
	if name != "chunk_s_1234.flac" {
		t.Fatalf("unexpected name: %s", name)
	}
	if _, seq, _, ok := ParseFileName(name); !ok || seq != 1234 {
		t.Fatalf("unexpected parse: %d %v", seq, ok)
	}
}

func TestParseFileName_Rejects(t *testing.T) {
	for _, name := range []string{
		"capture_20250301.pcm",
		".chunk_20250301_180000_001.wav.part",
		"chunk_20250301_180000_1.wav",
		"chunk_20250301_180000_001",
	} {
		if _, _, _, ok := ParseFileName(name); ok {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestFromPath(t *testing.T) {
	seg := FromPath("/data/chunk_x_002.wav")
	if seg.Sequence != 2 || seg.Name() != "chunk_x_002.wav" {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if FromPath("/tmp/meeting.wav").Sequence != -1 {
		t.Fatal("expected -1 for non-chunk names")
	}
}

func TestSegment_Duration(t *testing.T) {
	seg := Segment{Start: 300 * time.Second, End: 600 * time.Second}
	if seg.Duration() != 300*time.Second {
		t.Fatalf("unexpected duration: %s", seg.Duration())
	}
}
