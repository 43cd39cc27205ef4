package pipeline

import (
	"fmt"
	"strings"
)

// sentenceSpan locates one sentence inside the source text.
type sentenceSpan struct {
	start int
	end   int
}

// SentenceChunker creates a chunker that splits by sentences. Offsets are
// located in the source text, so chunk content is the verbatim slice
// between its start and end offset.
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]ChunkSpan, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		if strings.TrimSpace(text) == "" {
			return []ChunkSpan{}, nil
		}

		marked := strings.ReplaceAll(text, "! ", "!|")
		marked = strings.ReplaceAll(marked, "? ", "?|")
		marked = strings.ReplaceAll(marked, ". ", ".|")

		// Each trimmed part is a contiguous substring of the source, so
		// its true position can be found by scanning forward.
		var sentences []sentenceSpan
		searchFrom := 0
		for _, part := range strings.Split(marked, "|") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			idx := strings.Index(text[searchFrom:], part)
			if idx < 0 {
				continue
			}
			start := searchFrom + idx
			sentences = append(sentences, sentenceSpan{start: start, end: start + len(part)})
			searchFrom = start + len(part)
		}

		var chunks []ChunkSpan
		for i := 0; i < len(sentences); i += maxSentencesPerChunk {
			last := i + maxSentencesPerChunk
			if last > len(sentences) {
				last = len(sentences)
			}

			startOffset := sentences[i].start
			endOffset := sentences[last-1].end

			chunks = append(chunks, ChunkSpan{
				Content:     text[startOffset:endOffset],
				ChunkIndex:  len(chunks),
				StartOffset: startOffset,
				EndOffset:   endOffset,
				Metadata: map[string]interface{}{
					"num_sentences":   last - i,
					"chunking_method": "sentence",
				},
			})
		}

		return chunks, nil
	}
}

// ParagraphChunker creates a chunker that splits by paragraphs
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]ChunkSpan, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []ChunkSpan
		chunkIdx := 0
		pos := 0

		for _, para := range paragraphs {
			trimmed := strings.TrimSpace(para)
			if trimmed == "" {
				pos += len(para) + 2
				continue
			}

			startOffset := pos + strings.Index(para, trimmed)
			endOffset := startOffset + len(trimmed)

			chunks = append(chunks, ChunkSpan{
				Content:     trimmed,
				ChunkIndex:  chunkIdx,
				StartOffset: startOffset,
				EndOffset:   endOffset,
				Metadata: map[string]interface{}{
					"chunking_method": "paragraph",
				},
			})

			pos += len(para) + 2 // Account for "\n\n"
			chunkIdx++
		}

		return chunks, nil
	}
}
