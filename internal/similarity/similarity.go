// Package similarity scores how alike two questions are.
//
// The token-overlap ratio is the default measure for both the answer cache and
// topic clustering. Cosine similarity over embeddings is the drop-in
// replacement when vectors are available.
package similarity

import (
	"math"
	"strings"
)

// Scorer compares a reference string against a candidate.
// Scores are in [0, 1]; higher means more similar.
type Scorer interface {
	Score(reference, candidate string) float64
}

// ScorerFunc adapts a plain function to the Scorer interface
type ScorerFunc func(reference, candidate string) float64

// Score calls f(reference, candidate)
func (f ScorerFunc) Score(reference, candidate string) float64 {
	return f(reference, candidate)
}

// TokenOverlap is the token-overlap ratio as a Scorer
var TokenOverlap Scorer = ScorerFunc(OverlapRatio)

// Normalize trims and lower-cases a question
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Tokens splits s on whitespace
func Tokens(s string) []string {
	return strings.Fields(s)
}

// OverlapRatio returns the fraction of reference's whitespace tokens that
// also appear in candidate:
//
//	|tokens(reference) ∩ tokens(candidate)| / |tokens(reference)|
//
// Reference tokens are counted with repetition; candidate tokens are a set.
// The ratio is asymmetric, and an empty reference scores 0.
func OverlapRatio(reference, candidate string) float64 {
	ref := Tokens(reference)
	if len(ref) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ref))
	for _, tok := range Tokens(candidate) {
		set[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range ref {
		if _, ok := set[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(ref))
}

// Cosine returns the cosine similarity of two vectors.
// Mismatched lengths, empty vectors and zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
