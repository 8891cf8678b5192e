package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/trekassist/internal/provider"
)

func newTestEmbedder(baseURL string) *Embedder {
	e := &Embedder{}
	e.config.defaults()
	e.config.Dimensions = 3
	cfg := goopenai.DefaultConfig("sk-test")
	cfg.BaseURL = baseURL
	e.client = goopenai.NewClientWithConfig(cfg)
	return e
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" || req.Dimensions != 3 || len(req.Input) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1,0]},
			{"object":"embedding","index":0,"embedding":[1,0,0]}
		],"model":"text-embedding-3-small","usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer srv.Close()

	got, err := newTestEmbedder(srv.URL).Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("vectors out of order: %v", got)
	}
}

func TestEmbed_MapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL).Embed(context.Background(), []string{"x"})
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestEmbed_NotConfigured(t *testing.T) {
	e := &Embedder{}
	e.config.defaults()
	if _, err := e.Embed(context.Background(), []string{"x"}); !errors.Is(err, errNotConfigured) {
		t.Errorf("err = %v, want errNotConfigured", err)
	}
	if e.Configured() {
		t.Error("Configured() = true without a client")
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
