package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSimilarity(t *testing.T) {
	t.Run("Exact match scores 1.0", func(t *testing.T) {
		assert.Equal(t, 1.0, StringSimilarity("Acme Corp", "Acme Corp"))
	})

	t.Run("Case and whitespace insensitive exact match", func(t *testing.T) {
		assert.Equal(t, 1.0, StringSimilarity("ACME  Corp", "acme corp"))
	})

	t.Run("Containment scores at least 0.9", func(t *testing.T) {
		assert.GreaterOrEqual(t, StringSimilarity("Acme Corporation International", "Acme Corporation"), 0.9)
	})

	t.Run("Abbreviated name stays above clustering threshold", func(t *testing.T) {
		assert.GreaterOrEqual(t, StringSimilarity("John Doe", "J. Doe"), 0.8)
	})

	t.Run("Unrelated names score low", func(t *testing.T) {
		assert.Less(t, StringSimilarity("John Doe", "Acme Corp"), 0.5)
	})

	t.Run("Empty input scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, StringSimilarity("", "John Doe"))
		assert.Equal(t, 0.0, StringSimilarity("John Doe", "   "))
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Identical vectors score 1.0", func(t *testing.T) {
		v := []float32{0.5, 0.5, 0.1}
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
	})

	t.Run("Opposite vectors score 0.0", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	})

	t.Run("Orthogonal vectors score 0.5", func(t *testing.T) {
		assert.InDelta(t, 0.5, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("Absent embedding scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1, 0}))
		assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, nil))
	})

	t.Run("Dimension mismatch scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	})
}

func TestCombinedSimilarity(t *testing.T) {
	t.Run("Weight zero uses string similarity only", func(t *testing.T) {
		score := CombinedSimilarity("John Doe", "John Doe", []float32{1, 0}, []float32{0, 1}, 0)
		assert.InDelta(t, 1.0, score, 1e-6)
	})

	t.Run("Weight one uses semantic similarity only", func(t *testing.T) {
		score := CombinedSimilarity("John Doe", "Acme Corp", []float32{1, 0}, []float32{1, 0}, 1)
		assert.InDelta(t, 1.0, score, 1e-6)
	})

	t.Run("Identical normalized text overrides dissimilar embeddings", func(t *testing.T) {
		score := CombinedSimilarity("ACME Corp", "acme  corp", []float32{1, 0}, []float32{0, 1}, 0.5)
		assert.InDelta(t, 1.0, score, 1e-6)
	})

	t.Run("Missing embedding falls back to string similarity", func(t *testing.T) {
		score := CombinedSimilarity("John Doe", "John Doe", nil, []float32{1, 0}, 0.9)
		assert.InDelta(t, 1.0, score, 1e-6)
	})

	t.Run("Increasing semantic weight with high semantic similarity increases the score", func(t *testing.T) {
		embeddingA := []float32{1, 0}
		embeddingB := []float32{0.99, 0.05}

		low := CombinedSimilarity("John Doe", "Acme Corp", embeddingA, embeddingB, 0.2)
		high := CombinedSimilarity("John Doe", "Acme Corp", embeddingA, embeddingB, 0.9)

		assert.Greater(t, high, low)
	})
}
