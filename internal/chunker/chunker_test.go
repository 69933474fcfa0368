package chunker

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(DefaultWindow, DefaultOverlap)

	if got := s.Split(""); got != nil {
		t.Errorf("Split(empty) = %v, want nil", got)
	}
	if got := s.Split("   \n\t "); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(DefaultWindow, DefaultOverlap)

	chunks := s.Split("hello world")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestSplitWindowAndOverlap(t *testing.T) {
	s := NewSplitter(10, 3)
	text := "abcdefghijklmnopqrstuvwxyz" // 26 chars, step 7

	chunks := s.Split(text)
	want := []string{
		"abcdefghij", // 0..10
		"hijklmnopq", // 7..17
		"opqrstuvwx", // 14..24
		"vwxyz",      // 21..26
	}

	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitExactWindowBoundary(t *testing.T) {
	s := NewSplitter(10, 0)
	text := strings.Repeat("x", 20)

	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 10 {
			t.Errorf("chunk[%d] length = %d, want 10", i, len(c))
		}
	}
}

func TestSplitOverlapClampEnsuresProgress(t *testing.T) {
	// Overlap >= window would loop forever without the clamp
	s := NewSplitter(5, 10)
	text := strings.Repeat("y", 50)

	chunks := s.Split(text)
	if len(chunks) == 0 {
		t.Fatal("got no chunks")
	}
	// Clamped overlap is window-1, so each step advances by one char
	if len(chunks) != 46 {
		t.Errorf("got %d chunks, want 46", len(chunks))
	}
}

func TestSplitReconstructsText(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Dropping each chunk's leading overlap rebuilds the original
	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		rebuilt += c[20:]
	}
	if rebuilt != text {
		t.Error("chunks minus overlap do not reconstruct the original text")
	}
}

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.window != DefaultWindow {
		t.Errorf("window = %d, want %d", s.window, DefaultWindow)
	}
	if s.overlap != 0 {
		t.Errorf("overlap = %d, want 0", s.overlap)
	}
}
