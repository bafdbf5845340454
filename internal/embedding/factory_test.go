package embedding

import (
	"testing"

	"github.com/hyperjump/kensaku/internal/config"
	"go.uber.org/zap"
)

func TestNew_Hash(t *testing.T) {
	emb, err := New(config.EmbeddingConfig{Provider: config.ProviderHash}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer emb.Close()
	if emb.Name() != "hash" || emb.Dimensions() != DefaultHashDimensions {
		t.Errorf("Name=%q Dimensions=%d", emb.Name(), emb.Dimensions())
	}
	if _, ok := emb.(*HashEmbedder); !ok {
		t.Errorf("without cache_size expected *HashEmbedder, got %T", emb)
	}
}

func TestNew_Cached(t *testing.T) {
	emb, err := New(config.EmbeddingConfig{Provider: config.ProviderHash, Dimensions: 32, CacheSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := emb.(*CachedEmbedder); !ok {
		t.Errorf("expected *CachedEmbedder, got %T", emb)
	}
	if emb.Dimensions() != 32 {
		t.Errorf("Dimensions=%d", emb.Dimensions())
	}
}

func TestNew_ONNXFallsBackToHash(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider:   config.ProviderONNX,
		ModelPath:  "/nonexistent/model.onnx",
		Dimensions: 384,
		MaxTokens:  16,
	}
	emb, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if emb.Name() != "hash" || emb.Dimensions() != DefaultHashDimensions {
		t.Errorf("expected hash fallback, got %s/%d", emb.Name(), emb.Dimensions())
	}
}

func TestNew_OpenAIWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(config.EmbeddingConfig{Provider: config.ProviderOpenAI}, nil); err == nil {
		t.Error("expected error without OPENAI_API_KEY")
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "bert"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
