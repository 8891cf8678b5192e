package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/trekassist/internal/provider"
)

func newTestProvider(t *testing.T, baseURL string, keys ...string) *Provider {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{"sk-test"}
	}
	ring, err := provider.NewKeyRing(keys...)
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	p := &Provider{keys: ring}
	p.config.defaults()
	p.config.BaseURL = baseURL
	p.clients = newClients(keys, baseURL, http.DefaultClient)
	return p
}

func TestGenerate_Success(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]any
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Pack layers. "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	got, err := p.Generate(context.Background(), "system prompt", "what to pack?", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Pack layers." {
		t.Errorf("text = %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", body["messages"])
	}
	if body["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v, want default 1024", body["max_tokens"])
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests"}}`, provider.ErrRateLimit},
		{"server", http.StatusBadGateway, `{"error":{"message":"bad gateway","type":"server_error"}}`, provider.ErrProviderDown},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, errAuth},
		{"context", http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestProvider(t, srv.URL).Generate(context.Background(), "", "hi", 10)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerate_SwitchesClientWithKey(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "k1", "k2")
	_, _ = p.Generate(context.Background(), "", "a", 5)
	p.Keys().Bench(time.Now().Add(time.Minute))
	_, _ = p.Generate(context.Background(), "", "b", 5)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "Bearer k1" || seen[1] != "Bearer k2" {
		t.Errorf("auth headers = %v", seen)
	}
}

func TestMapError_ContextPassthrough(t *testing.T) {
	if err := MapError(context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if MapError(nil) != nil {
		t.Error("MapError(nil) must be nil")
	}
}
