package qdrant

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/knowledge"
)

type fakePoints struct {
	exists   bool
	created  *qdrant.CreateCollection
	upserts  []*qdrant.UpsertPoints
	deletes  []*qdrant.DeletePoints
	query    *qdrant.QueryPoints
	results  []*qdrant.ScoredPoint
	queryErr error
	closed   bool
}

func (f *fakePoints) CollectionExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakePoints) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = req
	f.exists = true
	return nil
}

func (f *fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deletes = append(f.deletes, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.query = req
	return f.results, f.queryErr
}

func (f *fakePoints) Close() error {
	f.closed = true
	return nil
}

func newTestMirror(f *fakePoints) *Mirror {
	m := &Mirror{client: f, logger: slog.New(slog.DiscardHandler)}
	m.config.Dimensions = 3
	m.config.defaults()
	return m
}

func TestSync_CreatesCollectionAndUpsertsExternalVectors(t *testing.T) {
	t.Parallel()
	f := &fakePoints{}
	m := newTestMirror(f)

	docs := []knowledge.Document{
		{ID: "a", Type: knowledge.TypeFaq, Embedding: embedding.Vector{Values: []float32{1, 0, 0}, Source: embedding.External}},
		{ID: "b", Type: knowledge.TypePolicy, Embedding: embedding.Vector{Values: []float32{0, 1, 0}, Source: embedding.LocalFallback}},
		{ID: "c", Type: knowledge.TypePolicy, Embedding: embedding.Vector{Values: []float32{0, 1}, Source: embedding.External}},
	}
	require.NoError(t, m.Sync(t.Context(), docs))

	require.NotNil(t, f.created)
	assert.Equal(t, "trekassist_knowledge", f.created.CollectionName)
	require.Len(t, f.upserts, 1)
	require.Len(t, f.upserts[0].Points, 1)
	assert.Equal(t, PointID("a"), f.upserts[0].Points[0].GetId().GetUuid())
	require.Len(t, f.deletes, 1)

	// The collection check is cached.
	f.created = nil
	require.NoError(t, m.Sync(t.Context(), docs))
	assert.Nil(t, f.created)
}

func TestSearchVector(t *testing.T) {
	t.Parallel()
	f := &fakePoints{results: []*qdrant.ScoredPoint{
		{Score: 0.9, Payload: qdrant.NewValueMap(map[string]any{payloadDocID: "a"})},
		{Score: 0.5, Payload: qdrant.NewValueMap(map[string]any{"other": "x"})},
	}}
	m := newTestMirror(f)

	hits, err := m.SearchVector(t.Context(), []float32{1, 0, 0}, 5, knowledge.TypeFaq)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)
	assert.NotNil(t, f.query.Filter)
	assert.Equal(t, uint64(5), f.query.GetLimit())

	_, err = m.SearchVector(t.Context(), []float32{1}, 5, "")
	assert.Error(t, err)

	f.queryErr = errors.New("unavailable")
	_, err = m.SearchVector(t.Context(), []float32{1, 0, 0}, 5, "")
	assert.Error(t, err)
}

func TestPointIDStable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, PointID("trip-1"), PointID("trip-1"))
	assert.NotEqual(t, PointID("trip-1"), PointID("trip-2"))
}

func TestParseURL(t *testing.T) {
	t.Parallel()
	host, port, tls, err := parseURL("https://q.example.com:7000")
	require.NoError(t, err)
	assert.Equal(t, "q.example.com", host)
	assert.Equal(t, 7000, port)
	assert.True(t, tls)

	host, port, tls, err = parseURL("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)

	_, _, _, err = parseURL("")
	assert.Error(t, err)
}

func TestStopClosesClient(t *testing.T) {
	t.Parallel()
	f := &fakePoints{}
	require.NoError(t, newTestMirror(f).Stop(t.Context()))
	assert.True(t, f.closed)
}
