package pipeline

import "context"

// ChunkSpan represents one ordered segment of cleaned document text with
// its character offsets into the source text.
type ChunkSpan struct {
	Content     string
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	Metadata    map[string]interface{}
}

// MentionSpan represents one raw entity mention extracted from a chunk.
// Offsets are relative to the chunk content.
type MentionSpan struct {
	Text        string
	Type        string
	StartOffset int
	EndOffset   int
	Confidence  float64
	Attributes  map[string]interface{}
}

// ChunkFunc is a function that splits cleaned document text into ordered,
// non-overlapping chunks with positional metadata.
type ChunkFunc func(text string) ([]ChunkSpan, error)

// EmbedFunc is a function that generates an embedding for text.
type EmbedFunc func(text string) ([]float32, error)

// MentionExtractFunc extracts raw entity mentions from one chunk's text.
// Wraps an external extraction service (LLM or local model).
type MentionExtractFunc func(ctx context.Context, chunkText string) ([]MentionSpan, error)
