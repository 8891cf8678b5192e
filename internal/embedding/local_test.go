package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := tokenize("Is the Kedarkantha trek OK in winter? It's -10°C!")
	assert.Equal(t, []string{"the", "kedarkantha", "trek", "winter"}, got)
}

func TestLocal_UnitVectors(t *testing.T) {
	t.Parallel()
	l := NewLocal(64, 0, 0)

	v := l.Embed("winter trek to kedarkantha with snow")
	require.Len(t, v, 64)
	sim := Similarity(Vector{Values: v}, Vector{Values: v})
	assert.InDelta(t, 1.0, sim, 1e-5)

	// The first text seen must still produce a usable vector.
	first := NewLocal(64, 0, 0).Embed("monsoon packing list")
	assert.NotZero(t, Similarity(Vector{Values: first}, Vector{Values: first}))

	assert.Equal(t, make([]float32, 64), l.Embed("a an to"))
}

func TestLocal_RelatedTextsScoreHigher(t *testing.T) {
	t.Parallel()
	l := NewLocal(256, 0, 0)

	docA := l.Embed("refund policy for cancelled bookings and refunds")
	docB := l.Embed("altitude sickness safety and acclimatization")
	query := l.Embed("how do refunds work for cancelled bookings")

	q := Vector{Values: query}
	assert.Greater(t, Similarity(q, Vector{Values: docA}), Similarity(q, Vector{Values: docB}))
}

func TestLocal_VocabularyPruning(t *testing.T) {
	t.Parallel()
	l := NewLocal(32, 10, 4)

	l.Embed("common alpha bravo")
	l.Embed("common charlie delta")
	l.Embed("common echo foxtrot golf hotel india juliet kilo")

	assert.LessOrEqual(t, l.VocabularySize(), 10)
	assert.Equal(t, 3, l.Documents())

	l.mu.Lock()
	_, kept := l.df["common"]
	l.mu.Unlock()
	assert.True(t, kept, "most frequent term survives pruning")

	l.Reset()
	assert.Zero(t, l.VocabularySize())
}
