package process

import (
	"strings"
	"testing"
)

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	b := NewTailBuffer(8)
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world, again"))
	if got := b.String(); got != ", again" {
		t.Fatalf("unexpected tail: %q", got)
	}
}

func TestTailBuffer_ReportsFullWrite(t *testing.T) {
	b := NewTailBuffer(4)
	n, err := b.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("unexpected write result: n=%d err=%v", n, err)
	}
}

func TestCheckInstalled(t *testing.T) {
	if err := CheckInstalled("sh"); err != nil {
		t.Fatalf("expected sh to be installed: %v", err)
	}
	err := CheckInstalled("sh", "definitely-not-a-real-binary-xyz")
	if err == nil || !strings.Contains(err.Error(), "definitely-not-a-real-binary-xyz") {
		t.Fatalf("expected missing binary error, got %v", err)
	}
}
