// Package chunker splits conversation text into token-window chunks for
// embedding and indexing.
package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultMaxTokens = 400
	DefaultOverlap   = 80
	DefaultMinTokens = 20

	encodingName = "cl100k_base"
)

// Options configures chunking behavior.
type Options struct {
	MaxTokens int // tokens per window
	Overlap   int // tokens shared between consecutive windows
	MinTokens int // windows below this are dropped
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxTokens: DefaultMaxTokens,
		Overlap:   DefaultOverlap,
		MinTokens: DefaultMinTokens,
	}
}

// Chunk is a window of normalized text produced by the chunker. Chunks
// exist only within a single ingestion call and are never stored directly.
type Chunk struct {
	RawText        string
	NormalizedText string
	TokenCount     int
	TokenStart     int // offset in the source token stream
	Hash           string
}

// TextChunker splits text into overlapping token windows using a fixed
// sub-word tokenizer.
type TextChunker struct {
	opts     Options
	encoding *tiktoken.Tiktoken
	step     int
}

// New creates a TextChunker. Overlap must be strictly smaller than
// MaxTokens.
func New(opts Options) (*TextChunker, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.MaxTokens {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk token size %d", opts.Overlap, opts.MaxTokens)
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("get encoding: %w", err)
	}
	step := opts.MaxTokens - opts.Overlap
	if step < 1 {
		step = 1
	}
	return &TextChunker{opts: opts, encoding: encoding, step: step}, nil
}

// Chunk splits text into normalized chunks. Empty input yields no chunks;
// input shorter than the window yields a single chunk. Chunks below
// MinTokens are silently dropped.
func (c *TextChunker) Chunk(text string) []Chunk {
	normalized := Normalize(text)
	tokens := c.encoding.Encode(normalized, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.opts.MaxTokens {
		if chunk, ok := c.buildChunk(tokens, 0); ok && chunk.TokenCount >= c.opts.MinTokens {
			return []Chunk{chunk}
		}
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(tokens) {
		end := start + c.opts.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		if chunk, ok := c.buildChunk(tokens[start:end], start); ok && chunk.TokenCount >= c.opts.MinTokens {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
		next := end - c.opts.Overlap
		// Guard against zero-progress windows.
		if next <= start {
			break
		}
		start = next
	}
	return chunks
}

// Normalize exposes the normalization pipeline for query-time text.
func (c *TextChunker) Normalize(text string) string {
	return Normalize(text)
}

func (c *TextChunker) buildChunk(tokenSlice []int, start int) (Chunk, bool) {
	if len(tokenSlice) == 0 {
		return Chunk{}, false
	}
	rawText := strings.TrimSpace(c.encoding.Decode(tokenSlice))
	normalized := Normalize(rawText)
	if normalized == "" {
		return Chunk{}, false
	}
	digest := sha1.Sum([]byte(normalized))
	return Chunk{
		RawText:        rawText,
		NormalizedText: normalized,
		TokenCount:     len(tokenSlice),
		TokenStart:     start,
		Hash:           hex.EncodeToString(digest[:]),
	}, true
}
