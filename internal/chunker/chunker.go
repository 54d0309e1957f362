package chunker

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Chunker splits extracted text into overlapping word windows sized for
// embedding. Successive windows advance by size-overlap words, so adjacent
// chunks share overlap words at each boundary.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker, validating that size > overlap >= 0. Violating that
// precondition would produce a non-advancing window.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must satisfy 0 <= overlap < size, got size=%d overlap=%d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a Chunker with the standard 500-word windows and 50-word
// overlap.
func Default() *Chunker {
	c, _ := New(DefaultChunkSize, DefaultOverlap)
	return c
}

// Chunk splits text on whitespace and windows the resulting words. The final
// chunk may be shorter than the configured size; empty chunks are dropped.
// Pure function of its inputs.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
