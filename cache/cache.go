// Package cache provides the best-effort memoization layer for stage
// outputs. Cache failures must never fail a pipeline stage: all call sites
// treat errors as a cache miss and fall back to recomputation.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key is absent or its TTL has expired.
var ErrNotFound = errors.New("cache entry not found")

// Cache is an ephemeral key/value store for memoized stage outputs.
// Implementations may fail independently of the pipeline's correctness.
type Cache interface {
	// Get retrieves the value stored under key.
	// Returns ErrNotFound when the key is absent or expired.
	Get(key string) ([]byte, error)

	// Set stores a value under key with the given TTL.
	// A TTL of zero stores the value without expiry.
	Set(key string, value []byte, ttl time.Duration) error

	// Invalidate removes a single key.
	Invalidate(key string) error

	// InvalidatePrefix removes all keys starting with prefix.
	// Returns the number of removed entries.
	InvalidatePrefix(prefix string) (int, error)

	// Close releases the cache backend.
	Close() error
}

// Key scheme: namespaced by stage and document id. A document reset
// invalidates the whole "doc:" namespace of that document wholesale.

// OCRKey is the cache key for a document's merged OCR text.
func OCRKey(documentRID uuid.UUID) string {
	return fmt.Sprintf("doc:ocr:%s", documentRID)
}

// ChunksKey is the cache key for a document's chunk list.
func ChunksKey(documentRID uuid.UUID) string {
	return fmt.Sprintf("doc:chunks:%s", documentRID)
}

// ResolutionKey is the cache key for a memoized resolution result,
// keyed by the deterministic input hash rather than the document id.
func ResolutionKey(inputHash string) string {
	return fmt.Sprintf("doc:resolution:%s", inputHash)
}

// PollKey is the cache key for a memoized OCR poll outcome.
func PollKey(jobID string) string {
	return fmt.Sprintf("ocr:poll:%s", jobID)
}

// DocumentKeys lists every per-document cache key. Resolution entries are
// content-addressed by input hash and stay valid across resets.
func DocumentKeys(documentRID uuid.UUID) []string {
	return []string{
		OCRKey(documentRID),
		ChunksKey(documentRID),
	}
}

// InvalidateDocument removes all per-document entries from c. A nil cache
// is a no-op; cache errors are ignored, the next read simply misses.
func InvalidateDocument(c Cache, documentRID uuid.UUID) {
	if c == nil {
		return
	}
	for _, key := range DocumentKeys(documentRID) {
		_ = c.Invalidate(key)
	}
}
