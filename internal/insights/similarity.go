package insights

import (
	"math"
	"sort"
	"time"
)

// Candidate is a read-only projection of a stored call used during ranking.
type Candidate struct {
	CallID         string
	AgentID        string
	Embedding      []float64
	SentimentScore *float64
	StartTime      time.Time
}

// RankedCandidate pairs a candidate with its similarity to the target.
type RankedCandidate struct {
	Candidate
	Similarity float64
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Defined as 0.0 when either vector has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every candidate with a non-empty embedding against the target
// and returns the top k, descending by similarity. The sort is stable so
// equal scores keep their input order. Candidates without an embedding are
// excluded rather than scored as zero: "unknown" is not "orthogonal".
func Rank(target []float64, candidates []Candidate, k int) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, RankedCandidate{
			Candidate:  c,
			Similarity: CosineSimilarity(target, c.Embedding),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
