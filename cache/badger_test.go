package cache

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *BadgerCache {
	c, err := NewBadgerCache("", slog.New(slog.DiscardHandler))
	require.NoError(t, err, "Expected in-memory cache to open")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBadgerCacheGetSet(t *testing.T) {
	c := newTestCache(t)

	t.Run("Get missing key returns ErrNotFound", func(t *testing.T) {
		_, err := c.Get("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Set and get round trip", func(t *testing.T) {
		err := c.Set("key", []byte("value"), 0)
		require.NoError(t, err)

		value, err := c.Get("key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("value"), value)
	})

	t.Run("Expired entry returns ErrNotFound", func(t *testing.T) {
		err := c.Set("short", []byte("gone"), 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		_, err = c.Get("short")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBadgerCacheInvalidate(t *testing.T) {
	c := newTestCache(t)

	t.Run("Invalidate removes key", func(t *testing.T) {
		require.NoError(t, c.Set("key", []byte("value"), 0))

		err := c.Invalidate("key")
		assert.NoError(t, err)

		_, err = c.Get("key")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Invalidate absent key is not an error", func(t *testing.T) {
		err := c.Invalidate("never-set")
		assert.NoError(t, err)
	})

	t.Run("InvalidatePrefix removes matching keys only", func(t *testing.T) {
		require.NoError(t, c.Set("doc:ocr:1", []byte("a"), 0))
		require.NoError(t, c.Set("doc:ocr:2", []byte("b"), 0))
		require.NoError(t, c.Set("doc:chunks:1", []byte("c"), 0))

		removed, err := c.InvalidatePrefix("doc:ocr:")
		assert.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = c.Get("doc:ocr:1")
		assert.ErrorIs(t, err, ErrNotFound)

		value, err := c.Get("doc:chunks:1")
		assert.NoError(t, err)
		assert.Equal(t, []byte("c"), value)
	})
}

func TestDocumentKeys(t *testing.T) {
	c := newTestCache(t)
	rid := uuid.New()

	t.Run("InvalidateDocument clears per-document entries", func(t *testing.T) {
		require.NoError(t, c.Set(OCRKey(rid), []byte("text"), 0))
		require.NoError(t, c.Set(ChunksKey(rid), []byte("chunks"), 0))
		require.NoError(t, c.Set(ResolutionKey("abc123"), []byte("resolution"), 0))

		InvalidateDocument(c, rid)

		_, err := c.Get(OCRKey(rid))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = c.Get(ChunksKey(rid))
		assert.ErrorIs(t, err, ErrNotFound)

		// Content-addressed resolution entries survive a reset
		value, err := c.Get(ResolutionKey("abc123"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("resolution"), value)
	})

	t.Run("Key scheme is namespaced by stage and document", func(t *testing.T) {
		assert.Equal(t, "doc:ocr:"+rid.String(), OCRKey(rid))
		assert.Equal(t, "doc:chunks:"+rid.String(), ChunksKey(rid))
		assert.Equal(t, "doc:resolution:abc", ResolutionKey("abc"))
		assert.Equal(t, "ocr:poll:job-1", PollKey("job-1"))
	})
}
