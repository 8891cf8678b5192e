package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/flemzord/trekassist/internal/embedding"
)

// Embedder is the subset of *embedding.Engine the corpus needs.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Vector, error)
	BatchEmbed(ctx context.Context, texts []string) ([]embedding.Vector, error)
	EmbedLocal(text string) embedding.Vector
}

// Mirror receives every new snapshot, e.g. an external vector database.
// Sync errors are logged and never fail a refresh.
type Mirror interface {
	Sync(ctx context.Context, docs []Document) error
}

// Hit is a document ID scored by an external index.
type Hit struct {
	ID    string
	Score float64
}

// VectorSearcher is implemented by mirrors that can answer nearest-neighbour
// queries for externally embedded vectors.
type VectorSearcher interface {
	SearchVector(ctx context.Context, vector []float32, limit int, typ Type) ([]Hit, error)
}

// Config tunes the corpus.
type Config struct {
	// RefreshInterval drives the scheduled refresh job.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// MinScore is the relevance floor: results must score above it.
	MinScore float64 `yaml:"min_score"`
	// DefaultTopK applies when Search is called with topK <= 0.
	DefaultTopK int `yaml:"default_top_k"`
	// Source configures the booking API. Ignored when a Source is injected.
	Source HTTPSourceConfig `yaml:"source"`

	Logger *slog.Logger     `yaml:"-"`
	Now    func() time.Time `yaml:"-"`
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 2 * time.Hour
	}
	if c.MinScore == 0 {
		c.MinScore = 0.1
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	c.Source.Defaults()
}

// Validate checks ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.MinScore < 0 || c.MinScore >= 1 {
		errs = append(errs, fmt.Errorf("knowledge: min_score must be in [0,1), got %v", c.MinScore))
	}
	if err := c.Source.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Result is one scored search result.
type Result struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Stats describes the current snapshot.
type Stats struct {
	Documents   int          `json:"documents"`
	ByType      map[Type]int `json:"by_type"`
	Version     uint64       `json:"version"`
	LastRefresh time.Time    `json:"last_refresh"`
	LastError   string       `json:"last_error,omitempty"`
}

type snapshot struct {
	docs        []Document
	byID        map[string]int
	version     uint64
	refreshedAt time.Time
}

// Corpus is the searchable document set. Reads go through an immutable
// snapshot that Refresh replaces in one atomic store.
type Corpus struct {
	embedder Embedder
	source   Source
	seed     []Document
	mirror   Mirror
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	current atomic.Pointer[snapshot]
	group   singleflight.Group
	// buildMu orders refreshes and reindexes so versions only grow.
	buildMu sync.Mutex

	errMu   sync.Mutex
	lastErr error
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithMirror attaches a mirror that receives every snapshot.
func WithMirror(m Mirror) Option {
	return func(c *Corpus) { c.mirror = m }
}

// WithSeed replaces the built-in seed documents.
func WithSeed(docs []Document) Option {
	return func(c *Corpus) {
		c.seed = make([]Document, len(docs))
		for i, d := range docs {
			d.Static = true
			c.seed[i] = d
		}
	}
}

// NewCorpus creates an empty corpus. Nothing is searchable until the first
// Refresh. A nil source means the corpus only holds seed documents.
func NewCorpus(e Embedder, src Source, cfg Config, opts ...Option) (*Corpus, error) {
	if e == nil {
		return nil, errors.New("knowledge: embedder is required")
	}
	cfg.Defaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Corpus{
		embedder: e,
		source:   src,
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      cfg.Now,
		tracer:   otel.Tracer("github.com/flemzord/trekassist/internal/knowledge"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.seed == nil {
		seed, err := SeedDocuments()
		if err != nil {
			return nil, err
		}
		c.seed = seed
	}
	return c, nil
}

// Refresh rebuilds the corpus from the seed and the live source. Concurrent
// calls share one rebuild. On failure the previous snapshot keeps serving
// and the returned error wraps ErrCorpusStale.
func (c *Corpus) Refresh(ctx context.Context) error {
	return c.rebuild(ctx, false)
}

// Reindex is Refresh with every embedding recomputed.
func (c *Corpus) Reindex(ctx context.Context) error {
	return c.rebuild(ctx, true)
}

func (c *Corpus) rebuild(ctx context.Context, force bool) error {
	key := "refresh"
	if force {
		key = "reindex"
	}
	_, err, _ := c.group.Do(key, func() (any, error) {
		return nil, c.doRefresh(ctx, force)
	})
	return err
}

func (c *Corpus) doRefresh(ctx context.Context, force bool) (err error) {
	ctx, span := c.tracer.Start(ctx, "knowledge.refresh", trace.WithAttributes(attribute.Bool("force", force)))
	start := time.Now()
	defer func() {
		refreshDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			refreshTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			refreshTotal.WithLabelValues("ok").Inc()
		}
		span.End()
	}()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	prev := c.current.Load()

	var live []Document
	var fetchErr error
	if c.source != nil {
		live, fetchErr = c.source.Fetch(ctx)
	}
	if fetchErr != nil && prev != nil {
		return c.fail(fetchErr)
	}

	docs := c.merge(live)
	changed, err := c.embed(ctx, docs, prev, force)
	if err != nil {
		return c.fail(err)
	}

	next := &snapshot{
		docs:        docs,
		byID:        make(map[string]int, len(docs)),
		refreshedAt: c.now(),
	}
	for i, d := range docs {
		next.byID[d.ID] = i
	}
	if prev != nil {
		next.version = prev.version + 1
	} else {
		next.version = 1
	}
	c.current.Store(next)
	publishGauges(docs)
	span.SetAttributes(
		attribute.Int("documents", len(docs)),
		attribute.Int("reembedded", changed),
	)

	if fetchErr != nil {
		// First snapshot: serve the seed, but report the source failure.
		return c.fail(fetchErr)
	}
	c.setErr(nil)
	c.logger.Info("knowledge corpus refreshed",
		"documents", len(docs),
		"reembedded", changed,
		"version", next.version,
	)

	if c.mirror != nil {
		if err := c.mirror.Sync(ctx, docs); err != nil {
			c.logger.Warn("knowledge mirror sync failed", "error", err)
		}
	}
	return nil
}

// embed fills in embeddings, reusing the previous snapshot's vector when a
// document's text is unchanged.
func (c *Corpus) embed(ctx context.Context, docs []Document, prev *snapshot, force bool) (int, error) {
	var pending []int
	for i := range docs {
		d := &docs[i]
		d.hash = contentHash(*d)
		if !force && prev != nil {
			if j, ok := prev.byID[d.ID]; ok {
				old := prev.docs[j]
				if old.hash == d.hash && !old.Embedding.IsZero() {
					d.Embedding = old.Embedding
					d.LastIndexedAt = old.LastIndexedAt
					continue
				}
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for k, i := range pending {
		texts[k] = docs[i].indexText()
	}
	vecs, err := c.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}
	now := c.now()
	for k, i := range pending {
		docs[i].Embedding = vecs[k]
		docs[i].LastIndexedAt = now
	}
	reembedded.Add(float64(len(pending)))
	return len(pending), nil
}

// merge combines seed and live documents. Live documents win on ID
// conflicts only for non-seed IDs; seed documents are never replaced.
// Unusable live documents are skipped.
func (c *Corpus) merge(live []Document) []Document {
	out := make([]Document, 0, len(c.seed)+len(live))
	seen := make(map[string]bool, cap(out))
	for _, d := range c.seed {
		d.Static = true
		d.Metadata = cloneMeta(d.Metadata)
		out = append(out, d)
		seen[d.ID] = true
	}
	for _, d := range live {
		if d.ID == "" || strings.TrimSpace(d.Content) == "" {
			continue
		}
		if seen[d.ID] {
			continue
		}
		if _, err := ParseType(string(d.Type)); err != nil {
			c.logger.Warn("skipping live document", "id", d.ID, "error", err)
			continue
		}
		if d.Type == "" {
			d.Type = TypeEntity
		}
		d.Static = false
		d.Metadata = cloneMeta(d.Metadata)
		out = append(out, d)
		seen[d.ID] = true
	}
	return out
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (c *Corpus) fail(err error) error {
	err = fmt.Errorf("%w: %w", ErrCorpusStale, err)
	c.setErr(err)
	c.logger.Warn("knowledge refresh failed, serving previous snapshot", "error", err)
	return err
}

func (c *Corpus) setErr(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

// Search scores documents against query and returns up to topK results
// above the relevance floor, best first. An empty typ searches every type.
func (c *Corpus) Search(ctx context.Context, query string, topK int, typ Type) ([]Result, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	if topK <= 0 {
		topK = c.cfg.DefaultTopK
	}

	ctx, span := c.tracer.Start(ctx, "knowledge.search", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.String("type", string(typ)),
	))
	defer span.End()

	qv, err := c.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	if qv.Source == embedding.External {
		if vs, ok := c.mirror.(VectorSearcher); ok {
			results, err := c.searchMirror(ctx, vs, snap, qv, topK, typ)
			if err == nil {
				searchTotal.WithLabelValues("mirror").Inc()
				return results, nil
			}
			c.logger.Warn("mirror search failed, scoring in memory", "error", err)
		}
	}
	searchTotal.WithLabelValues("memory").Inc()
	return c.searchSnapshot(snap, query, qv, topK, typ), nil
}

func (c *Corpus) searchSnapshot(snap *snapshot, query string, qv embedding.Vector, topK int, typ Type) []Result {
	// The local query vector is only needed when an external query meets
	// locally indexed documents.
	var localQuery embedding.Vector
	candidates := make([]embedding.Candidate[int], 0, len(snap.docs))
	for i, d := range snap.docs {
		if typ != "" && d.Type != typ {
			continue
		}
		if d.Embedding.IsZero() {
			continue
		}
		if d.Embedding.Source != qv.Source {
			// A local query cannot be compared with external vectors.
			if qv.Source != embedding.External {
				continue
			}
			if localQuery.IsZero() {
				localQuery = c.embedder.EmbedLocal(query)
			}
		}
		candidates = append(candidates, embedding.Candidate[int]{Item: i, Vector: d.Embedding})
	}
	return c.rank(snap, candidates, qv, localQuery, topK)
}

// rank scores each candidate against the query vector of its own source.
func (c *Corpus) rank(snap *snapshot, candidates []embedding.Candidate[int], qv, localQuery embedding.Vector, topK int) []Result {
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		q := qv
		if cand.Vector.Source != qv.Source {
			q = localQuery
		}
		all = append(all, scored{idx: cand.Item, score: embedding.Similarity(q, cand.Vector)})
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make([]Result, 0, min(topK, len(all)))
	for _, s := range all {
		if len(out) == topK || s.score <= c.cfg.MinScore {
			break
		}
		out = append(out, Result{Document: snap.docs[s.idx], Score: s.score})
	}
	return out
}

func (c *Corpus) searchMirror(ctx context.Context, vs VectorSearcher, snap *snapshot, qv embedding.Vector, topK int, typ Type) ([]Result, error) {
	hits, err := vs.SearchVector(ctx, qv.Values, topK, typ)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		i, ok := snap.byID[h.ID]
		if !ok || h.Score <= c.cfg.MinScore {
			continue
		}
		if typ != "" && snap.docs[i].Type != typ {
			continue
		}
		out = append(out, Result{Document: snap.docs[i], Score: min(h.Score, 1)})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Get returns a document by ID from the current snapshot.
func (c *Corpus) Get(id string) (Document, bool) {
	snap := c.current.Load()
	if snap == nil {
		return Document{}, false
	}
	i, ok := snap.byID[id]
	if !ok {
		return Document{}, false
	}
	return snap.docs[i], true
}

// Documents returns the current snapshot's documents. The slice is shared;
// callers must not modify it.
func (c *Corpus) Documents() []Document {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return snap.docs
}

// Ready reports whether a snapshot has been installed.
func (c *Corpus) Ready() bool {
	return c.current.Load() != nil
}

// Stats describes the current snapshot and the last refresh outcome.
func (c *Corpus) Stats() Stats {
	st := Stats{ByType: make(map[Type]int, len(Types))}
	for _, t := range Types {
		st.ByType[t] = 0
	}
	if snap := c.current.Load(); snap != nil {
		st.Documents = len(snap.docs)
		st.Version = snap.version
		st.LastRefresh = snap.refreshedAt
		for _, d := range snap.docs {
			st.ByType[d.Type]++
		}
	}
	c.errMu.Lock()
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.errMu.Unlock()
	return st
}

// Interval returns the configured refresh interval.
func (c *Corpus) Interval() time.Duration { return c.cfg.RefreshInterval }

// Close drops the snapshot.
func (c *Corpus) Close() error {
	c.current.Store(nil)
	return nil
}

func publishGauges(docs []Document) {
	counts := make(map[Type]int, len(Types))
	for _, d := range docs {
		counts[d.Type]++
	}
	for _, t := range Types {
		documentsGauge.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
