package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/provider/providertest"
	"github.com/flemzord/trekassist/internal/security"
	"github.com/flemzord/trekassist/internal/security/securitytest"
)

const testToken = "test-token"

// fakeKnowledge is a fixed corpus.
type fakeKnowledge struct {
	mu         sync.Mutex
	results    []knowledge.Result
	ready      bool
	refreshErr error
	searches   atomic.Int32
	refreshes  atomic.Int32
	refreshed  chan struct{}
}

func (k *fakeKnowledge) Search(_ context.Context, _ string, topK int, typ knowledge.Type) ([]knowledge.Result, error) {
	k.searches.Add(1)
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.ready {
		return nil, knowledge.ErrNotReady
	}
	var out []knowledge.Result
	for _, r := range k.results {
		if typ != "" && r.Document.Type != typ {
			continue
		}
		out = append(out, r)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (k *fakeKnowledge) Refresh(context.Context) error {
	k.refreshes.Add(1)
	if k.refreshed != nil {
		defer func() { k.refreshed <- struct{}{} }()
	}
	if k.refreshErr != nil {
		return k.refreshErr
	}
	k.mu.Lock()
	k.ready = true
	k.mu.Unlock()
	return nil
}

func (k *fakeKnowledge) Ready() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ready
}

func (k *fakeKnowledge) Stats() knowledge.Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return knowledge.Stats{Documents: len(k.results), Version: 1}
}

var refundResult = knowledge.Result{
	Document: knowledge.Document{
		ID: "base-cancellation-refund", Type: knowledge.TypePolicy, Title: "Cancellation and refunds",
		Content: "Full refund 30 or more days before departure.",
	},
	Score: 0.9,
}

type fixture struct {
	gateway   *Gateway
	handler   http.Handler
	manager   *conversation.Manager
	cache     *cache.Service
	knowledge *fakeKnowledge
	generator *providertest.MockGenerator
	events    func() []security.AuditEvent
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	kv := kvs.NewMemoryStore(kvs.MemoryConfig{SweepInterval: -1})
	t.Cleanup(func() { _ = kv.Close() })

	mgr := conversation.NewManager(conversation.NewKVStore(kv, nil, nil), conversation.Config{})
	c := cache.New(kv, cache.Config{})
	k := &fakeKnowledge{results: []knowledge.Result{refundResult}, ready: true}
	gen := &providertest.MockGenerator{Reply: "You get a full refund 30 days out."}

	a, err := assistant.New(mgr, k, gen, c, assistant.Config{Timeout: time.Second})
	require.NoError(t, err)

	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Generator: gen, Role: provider.RolePrimary},
	})
	require.NoError(t, err)

	audit := securitytest.NewAuditLogger()

	g := &Gateway{
		config: cfg,
		audit:  audit,
		deps: Deps{
			Chat:      a,
			Sessions:  mgr,
			Knowledge: k,
			Cache:     c,
			Providers: chain,
		},
	}
	g.init(nil)
	g.registerWebhooks()
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	return &fixture{
		gateway:   g,
		handler:   g.buildRouter(),
		manager:   mgr,
		cache:     c,
		knowledge: k,
		generator: gen,
		events: func() []security.AuditEvent {
			return securitytest.Events(audit, "")
		},
	}
}

// do runs one request against the router. A non-nil body is JSON encoded
// unless it is already a string.
func (f *fixture) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequestWithContext(t.Context(), method, target, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}
