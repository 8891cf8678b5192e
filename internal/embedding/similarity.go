package embedding

import (
	"math"
	"slices"
)

// Similarity is the cosine of a and b clamped to [0,1]. It is 0 when the
// lengths differ or either vector has zero magnitude.
func Similarity(a, b Vector) float64 {
	if len(a.Values) != len(b.Values) || len(a.Values) == 0 {
		return 0
	}
	var dot, ma, mb float64
	for i := range a.Values {
		x, y := float64(a.Values[i]), float64(b.Values[i])
		dot += x * y
		ma += x * x
		mb += y * y
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return max(0, min(1, dot/(math.Sqrt(ma)*math.Sqrt(mb))))
}

// Candidate pairs an item with its vector.
type Candidate[T any] struct {
	Item   T
	Vector Vector
}

// Scored is a ranked candidate.
type Scored[T any] struct {
	Item  T
	Score float64
}

// TopK ranks candidates by similarity to query, highest first. Equal scores
// keep their input order. A non-positive k returns every candidate.
func TopK[T any](query Vector, candidates []Candidate[T], k int) []Scored[T] {
	out := make([]Scored[T], len(candidates))
	for i, c := range candidates {
		out[i] = Scored[T]{Item: c.Item, Score: Similarity(query, c.Vector)}
	}
	slices.SortStableFunc(out, func(a, b Scored[T]) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
