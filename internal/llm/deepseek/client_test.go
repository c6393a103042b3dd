package deepseek

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestAnalyzeSendsChatCompletionRequest(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"strengths\":[\"fast\"]}"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	payload, err := client.Analyze(context.Background(), "Business Input: x", "swot")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, ok := payload["strengths"]; !ok {
		t.Fatalf("expected parsed payload, got %v", payload)
	}
	if auth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header %q", auth)
	}
	if got.Model != "deepseek-chat" || got.MaxTokens != 4000 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != llm.SystemPrompt("swot") {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.Messages[1].Content != "Business Input: x" {
		t.Fatalf("expected prompt context as user message, got %q", got.Messages[1].Content)
	}
}

func TestAnalyzeWrapsUnparseableReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Strengths: many. Weaknesses: few."}}]}`))
	}))
	defer server.Close()

	payload, err := newTestClient(t, server.URL).Analyze(context.Background(), "ctx", "swot")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !llm.IsUnstructured(payload) {
		t.Fatalf("expected unstructured payload, got %v", payload)
	}
	if payload["analysis"] != "Strengths: many. Weaknesses: few." {
		t.Fatalf("unexpected raw text %v", payload["analysis"])
	}
}

func TestAnalyzeFallsBackToCanned(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{name: "unauthorized", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
		}},
		{name: "empty content", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
		}},
		{name: "no choices", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
		{name: "garbage body", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			before := metrics.ProviderFallbacks(ProviderID)
			payload, err := newTestClient(t, server.URL).Analyze(context.Background(), "ctx", "pestel")
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if _, ok := payload["political"]; !ok {
				t.Fatalf("expected canned pestel payload, got %v", payload)
			}
			if got := metrics.ProviderFallbacks(ProviderID) - before; got != 1 {
				t.Fatalf("expected one fallback counted, got %d", got)
			}
		})
	}
}

func TestAnalyzeOfflineSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	for _, cfg := range []Config{
		{APIKey: "k", BaseURL: server.URL, Offline: true},
		{BaseURL: server.URL},
	} {
		client, err := NewClient(cfg)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		payload, err := client.Analyze(context.Background(), "ctx", "market_sizing")
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if _, ok := payload["strengths"]; !ok {
			t.Fatalf("expected swot fallback for unknown canned framework, got %v", payload)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no HTTP calls, got %d", calls.Load())
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://example.test/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.baseURL != "https://example.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", client.baseURL)
	}
	if client.model != defaultModel || client.httpClient.Timeout != defaultTimeout {
		t.Fatalf("unexpected defaults: model=%s timeout=%s", client.model, client.httpClient.Timeout)
	}
	if client.Name() != "deepseek" {
		t.Fatalf("unexpected name %q", client.Name())
	}
}
