package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func vec(vals ...float32) Vector { return Vector{Values: vals, Source: External} }

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"identical", vec(1, 2, 3), vec(1, 2, 3), 1},
		{"scaled", vec(1, 2, 3), vec(2, 4, 6), 1},
		{"orthogonal", vec(1, 0), vec(0, 1), 0},
		{"opposite clamps to zero", vec(1, 0), vec(-1, 0), 0},
		{"zero magnitude", vec(0, 0), vec(1, 1), 0},
		{"length mismatch", vec(1, 0), vec(1, 0, 0), 0},
		{"empty", Vector{}, Vector{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Similarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-6)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestTopK(t *testing.T) {
	t.Parallel()

	query := vec(1, 0)
	cands := []Candidate[string]{
		{Item: "far", Vector: vec(0, 1)},
		{Item: "tie-a", Vector: vec(1, 1)},
		{Item: "exact", Vector: vec(1, 0)},
		{Item: "tie-b", Vector: vec(1, 1)},
	}

	got := TopK(query, cands, 3)
	items := make([]string, len(got))
	for i, s := range got {
		items[i] = s.Item
	}
	assert.Equal(t, []string{"exact", "tie-a", "tie-b"}, items)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	assert.Len(t, TopK(query, cands, 0), 4)
	assert.Len(t, TopK(query, cands, 10), 4)
	assert.Empty(t, TopK(query, []Candidate[string]{}, 3))
}
