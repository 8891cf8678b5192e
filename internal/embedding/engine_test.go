package embedding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/embedding/embeddingtest"
)

func TestEngine_NoProviderUsesLocal(t *testing.T) {
	t.Parallel()
	e := embedding.NewEngine(nil, embedding.Config{Dimensions: 32})

	v, err := e.Embed(t.Context(), "packing for monsoon treks")
	require.NoError(t, err)
	assert.Equal(t, embedding.LocalFallback, v.Source)
	assert.Equal(t, 32, v.Dimensions())
	assert.Equal(t, "local", e.Status().Provider)
}

func TestEngine_EmptyText(t *testing.T) {
	t.Parallel()
	e := embedding.NewEngine(nil, embedding.Config{})

	_, err := e.Embed(t.Context(), "   ")
	require.ErrorIs(t, err, embedding.ErrEmptyText)
	_, err = e.BatchEmbed(t.Context(), []string{"ok text", ""})
	require.ErrorIs(t, err, embedding.ErrEmptyText)
}

func TestEngine_External(t *testing.T) {
	t.Parallel()
	p := &embeddingtest.Provider{Dims: 16, Batch: 2}
	e := embedding.NewEngine(p, embedding.Config{})

	vecs, err := e.BatchEmbed(t.Context(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Equal(t, embedding.External, v.Source)
	}
	assert.Equal(t, [][]string{{"one", "two"}, {"three"}}, p.Calls())

	single, err := e.Embed(t.Context(), "three")
	require.NoError(t, err)
	assert.Equal(t, vecs[2], single)
}

func TestEngine_FallbackOnError(t *testing.T) {
	t.Parallel()
	p := &embeddingtest.Provider{Err: errors.New("boom")}
	e := embedding.NewEngine(p, embedding.Config{Dimensions: 32})

	v, err := e.Embed(t.Context(), "trek safety basics")
	require.NoError(t, err)
	assert.Equal(t, embedding.LocalFallback, v.Source)
}

func TestEngine_FallbackOnTimeout(t *testing.T) {
	t.Parallel()
	p := &embeddingtest.Provider{Block: true}
	e := embedding.NewEngine(p, embedding.Config{Timeout: 20 * time.Millisecond, Dimensions: 32})

	v, err := e.Embed(t.Context(), "trek safety basics")
	require.NoError(t, err)
	assert.Equal(t, embedding.LocalFallback, v.Source)
	assert.Len(t, p.Calls(), 1, "no retry inside a request")
}

func TestEngine_CallerCancellation(t *testing.T) {
	t.Parallel()
	p := &embeddingtest.Provider{Block: true}
	e := embedding.NewEngine(p, embedding.Config{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := e.Embed(ctx, "anything here")
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_BatchMatchesSequential(t *testing.T) {
	t.Parallel()
	texts := []string{
		"booking flow for winter treks",
		"refund and cancellation policy",
		"winter treks in uttarakhand",
	}

	batch := embedding.NewEngine(nil, embedding.Config{Dimensions: 64})
	got, err := batch.BatchEmbed(t.Context(), texts)
	require.NoError(t, err)

	seq := embedding.NewEngine(nil, embedding.Config{Dimensions: 64})
	for i, text := range texts {
		v, err := seq.Embed(t.Context(), text)
		require.NoError(t, err)
		assert.Equal(t, v, got[i], "text %d", i)
	}
}
