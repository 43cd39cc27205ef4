// Package resolution deduplicates entity mentions into canonical entities
// using a blend of string and semantic similarity, and links canonical
// entities across documents without ever merging their records.
package resolution

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// StringSimilarity scores two mention texts in [0,1]. Comparison is
// case-insensitive; an exact match scores 1.0 and containment of one
// normalized text in the other scores at least 0.9. Otherwise the score is
// the normalized Levenshtein ratio, boosted by token overlap for
// multi-token names so "John Doe" and "J. Doe" still land close.
func StringSimilarity(a, b string) float64 {
	normA := normalizeText(a)
	normB := normalizeText(b)

	if normA == "" || normB == "" {
		return 0
	}
	if normA == normB {
		return 1.0
	}
	if strings.Contains(normA, normB) || strings.Contains(normB, normA) {
		return 0.9
	}

	distance := levenshtein.ComputeDistance(normA, normB)
	longest := len([]rune(normA))
	if l := len([]rune(normB)); l > longest {
		longest = l
	}
	ratio := 1.0 - float64(distance)/float64(longest)

	if overlap := tokenOverlap(normA, normB); overlap > ratio {
		ratio = overlap
	}

	if ratio < 0 {
		return 0
	}
	return ratio
}

// CosineSimilarity computes the cosine of the angle between two embedding
// vectors, mapped into [0,1]. Returns 0 when either vector is absent or the
// dimensions disagree.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cosine := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cosine + 1) / 2
}

// CombinedSimilarity blends semantic and string similarity with the given
// semantic weight. Identical normalized texts score 1.0 outright: the same
// surface form is the same entity no matter how its embeddings diverge.
// When either embedding is missing the string score is used alone, so
// resolution degrades gracefully without embeddings.
func CombinedSimilarity(textA, textB string, embeddingA, embeddingB []float32, semanticWeight float64) float64 {
	if normalizeText(textA) == normalizeText(textB) && normalizeText(textA) != "" {
		return 1.0
	}

	stringScore := StringSimilarity(textA, textB)

	if len(embeddingA) == 0 || len(embeddingB) == 0 {
		return stringScore
	}

	semanticScore := CosineSimilarity(embeddingA, embeddingB)
	return semanticWeight*semanticScore + (1-semanticWeight)*stringScore
}

// normalizeText lowercases and collapses whitespace.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// tokenOverlap returns the share of tokens of the smaller multi-token name
// that occur in the other, with abbreviated initials ("j." / "j") matching
// their full token ("john"). Single-token names get no boost.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) < 2 && len(tokensB) < 2 {
		return 0
	}

	smaller, larger := tokensA, tokensB
	if len(tokensB) < len(tokensA) {
		smaller, larger = tokensB, tokensA
	}

	matched := 0
	for _, token := range smaller {
		for _, other := range larger {
			if tokensMatch(token, other) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(smaller))
}

// tokensMatch reports whether two name tokens refer to the same word,
// treating a single-letter abbreviation as matching any token it initials.
func tokensMatch(a, b string) bool {
	a = strings.TrimSuffix(a, ".")
	b = strings.TrimSuffix(b, ".")
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) == 1 {
		return strings.HasPrefix(b, a)
	}
	if len(b) == 1 {
		return strings.HasPrefix(a, b)
	}
	return false
}
