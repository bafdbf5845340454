package embedding

import (
	"fmt"

	"github.com/hyperjump/kensaku/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider and wraps it in a CachedEmbedder when
// cfg.CacheSize > 0. If the ONNX model cannot be loaded, New logs a warning and falls back to
// the hash embedder. An OpenAI setup error is returned as is.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var emb Embedder
	switch cfg.Provider {
	case config.ProviderHash, "":
		emb = NewHashEmbedder(cfg.Dimensions)
	case config.ProviderONNX:
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using hash embedder",
				zap.String("model_path", cfg.ModelPath),
				zap.Int("dimensions", DefaultHashDimensions),
				zap.Error(err))
			emb = NewHashEmbedder(DefaultHashDimensions)
		} else {
			emb = onnx
		}
	case config.ProviderOpenAI:
		oa, err := NewOpenAIEmbedder(cfg.OpenAIModel, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = oa
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	logger.Info("embedder ready",
		zap.String("name", emb.Name()),
		zap.Int("dimensions", emb.Dimensions()))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(emb, cfg.CacheSize), nil
	}
	return emb, nil
}
