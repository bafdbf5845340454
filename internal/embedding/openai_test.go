package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var gotInputs []string
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotInputs = req.Input
		// Return data in reverse order to exercise index-based placement.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	})

	e := NewOpenAIEmbedderWithClient(client, "text-embedding-3-small", 3)
	embs, err := e.EmbedBatch(context.Background(), []string{"a", "", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 3 {
		t.Fatalf("got %d embeddings", len(embs))
	}
	for i, v := range embs {
		if v[0] != float32(i) {
			t.Errorf("embedding %d out of order: %v", i, v)
		}
	}
	if len(gotInputs) != 3 || gotInputs[1] != " " {
		t.Errorf("inputs sent = %q", gotInputs)
	}
	if e.Name() != "openai:text-embedding-3-small" {
		t.Errorf("Name=%q", e.Name())
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{1, 2}}},
		})
	})
	e := NewOpenAIEmbedderWithClient(client, "text-embedding-3-small", 3)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected dimension error")
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})
	e := NewOpenAIEmbedderWithClient(client, "text-embedding-3-small", 3)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected API error")
	}
}

func TestNewOpenAIEmbedder_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIEmbedder("text-embedding-3-small", 0); err == nil {
		t.Error("expected error without OPENAI_API_KEY")
	}
}

func TestNewOpenAIEmbedderWithClient_DefaultDimensions(t *testing.T) {
	if d := NewOpenAIEmbedderWithClient(nil, "text-embedding-3-large", 0).Dimensions(); d != 3072 {
		t.Errorf("large: %d", d)
	}
	if d := NewOpenAIEmbedderWithClient(nil, "text-embedding-3-small", 0).Dimensions(); d != 1536 {
		t.Errorf("small: %d", d)
	}
}
