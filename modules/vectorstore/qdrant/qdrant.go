// Package qdrant implements the vectorstore.qdrant module: a Qdrant
// collection that mirrors every corpus snapshot and answers nearest
// neighbour queries for externally embedded vectors.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/knowledge"
)

func init() {
	core.RegisterModule(&Mirror{})
}

// Interface guards.
var (
	_ core.Module              = (*Mirror)(nil)
	_ core.Configurable        = (*Mirror)(nil)
	_ core.Provisioner         = (*Mirror)(nil)
	_ core.Validator           = (*Mirror)(nil)
	_ core.Stopper             = (*Mirror)(nil)
	_ knowledge.Mirror         = (*Mirror)(nil)
	_ knowledge.VectorSearcher = (*Mirror)(nil)
)

// Payload keys stored on each point.
const (
	payloadDocID = "doc_id"
	payloadType  = "type"
	payloadTitle = "title"
)

// pointIDSpace namespaces the deterministic point UUIDs.
var pointIDSpace = uuid.MustParse("6f1c7a52-1d2b-4b8e-9a55-1e0f3c2d9b10")

// Config holds the vectorstore.qdrant settings.
type Config struct {
	// URL of the gRPC endpoint, e.g. "http://localhost:6334".
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Collection string        `yaml:"collection"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Collection == "" {
		c.Collection = "trekassist_knowledge"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "QDRANT_API_KEY"
	}
}

// points is the subset of *qdrant.Client the mirror calls.
type points interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Mirror is the vectorstore.qdrant module.
type Mirror struct {
	config Config
	client points
	logger *slog.Logger
	ready  bool
}

// ModuleInfo implements core.Module.
func (m *Mirror) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "vectorstore.qdrant",
		New: func() core.Module { return &Mirror{} },
	}
}

// Configure implements core.Configurable.
func (m *Mirror) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Mirror) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if m.client != nil {
		return nil
	}
	host, port, useTLS, err := parseURL(m.config.URL)
	if err != nil {
		return err
	}
	key := m.config.APIKey
	if key == "" {
		key = os.Getenv(m.config.APIKeyEnv)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: key,
		UseTLS: useTLS,
	})
	if err != nil {
		return fmt.Errorf("vectorstore.qdrant: create client: %w", err)
	}
	m.client = client
	return nil
}

// Validate implements core.Validator.
func (m *Mirror) Validate() error {
	var errs []error
	if m.config.URL == "" && m.client == nil {
		errs = append(errs, errors.New("vectorstore.qdrant: url is required"))
	}
	if m.config.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vectorstore.qdrant: dimensions must be positive, got %d", m.config.Dimensions))
	}
	return errors.Join(errs...)
}

// Stop implements core.Stopper.
func (m *Mirror) Stop(context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, errors.New("vectorstore.qdrant: url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("vectorstore.qdrant: parse url: %w", err)
	}
	port = 6334
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false, fmt.Errorf("vectorstore.qdrant: invalid port %q: %w", p, err)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// PointID maps a document ID to its stable Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(docID)).String()
}

// Sync implements knowledge.Mirror. Only externally embedded documents of
// the configured size are stored; points for documents that left the
// corpus are deleted.
func (m *Mirror) Sync(ctx context.Context, docs []knowledge.Document) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	if err := m.ensureCollection(ctx); err != nil {
		return err
	}

	pts := make([]*qdrant.PointStruct, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Embedding.Source != embedding.External || d.Embedding.Dimensions() != m.config.Dimensions {
			continue
		}
		ids = append(ids, d.ID)
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(d.ID)),
			Vectors: qdrant.NewVectors(d.Embedding.Values...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocID: d.ID,
				payloadType:  string(d.Type),
				payloadTitle: d.Title,
			}),
		})
	}

	if len(pts) > 0 {
		if _, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: m.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         pts,
		}); err != nil {
			return fmt.Errorf("vectorstore.qdrant: upsert: %w", err)
		}
	}

	filter := &qdrant.Filter{}
	if len(ids) > 0 {
		filter.MustNot = []*qdrant.Condition{qdrant.NewMatchKeywords(payloadDocID, ids...)}
	}
	if _, err := m.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: m.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	}); err != nil {
		return fmt.Errorf("vectorstore.qdrant: prune: %w", err)
	}

	m.logger.Debug("qdrant mirror synced", "points", len(pts), "collection", m.config.Collection)
	return nil
}

func (m *Mirror) ensureCollection(ctx context.Context) error {
	if m.ready {
		return nil
	}
	exists, err := m.client.CollectionExists(ctx, m.config.Collection)
	if err != nil {
		return fmt.Errorf("vectorstore.qdrant: check collection: %w", err)
	}
	if !exists {
		err := m.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: m.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(m.config.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("vectorstore.qdrant: create collection: %w", err)
		}
		m.logger.Info("created qdrant collection", "collection", m.config.Collection, "dimensions", m.config.Dimensions)
	}
	m.ready = true
	return nil
}

// SearchVector implements knowledge.VectorSearcher.
func (m *Mirror) SearchVector(ctx context.Context, vector []float32, limit int, typ knowledge.Type) ([]knowledge.Hit, error) {
	if len(vector) != m.config.Dimensions {
		return nil, fmt.Errorf("vectorstore.qdrant: query has %d dimensions, collection has %d", len(vector), m.config.Dimensions)
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req := &qdrant.QueryPoints{
		CollectionName: m.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if typ != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadType, string(typ))},
		}
	}
	found, err := m.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.qdrant: query: %w", err)
	}

	hits := make([]knowledge.Hit, 0, len(found))
	for _, p := range found {
		id := p.GetPayload()[payloadDocID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, knowledge.Hit{ID: id, Score: float64(p.GetScore())})
	}
	return hits, nil
}
