// Package chunker splits documents into overlapping slices and drives the
// indexing pipeline that turns a document into stored chunks.
package chunker

import "strings"

// Default split parameters. The overlap keeps context alive across chunk
// boundaries for retrieval.
const (
	DefaultWindow  = 1500
	DefaultOverlap = 150
)

// Splitter produces fixed-window chunks with overlap.
type Splitter struct {
	window  int
	overlap int
}

// NewSplitter creates a splitter. Non-positive window falls back to the
// default; overlap is clamped below the window so every step advances.
func NewSplitter(window, overlap int) *Splitter {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window - 1
	}
	return &Splitter{window: window, overlap: overlap}
}

// Split slices text into chunks of at most window characters, each starting
// overlap characters before the previous chunk ended. Whitespace-only input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	step := s.window - s.overlap // always >= 1 after clamping

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + s.window
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}

	return chunks
}
