package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/llm"
	"github.com/hyperjump/kensaku/internal/retrieval"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	debug      bool
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence so running from a project dir uses the project's config. A
// missing default config yields the built-in defaults. It returns the path actually loaded,
// or "" when none was.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

// loadEnv reads .env from the working directory and from the config directory. Variables
// already set in the environment win.
func loadEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// openService builds the retrieval service from cfg: embedder, vector index (loaded from
// disk), document registry and answer generator. An index whose files do not match the
// configured backend or embedder dimension is an error; rebuild or remove the files.
func openService(cfg *config.Config, logger *zap.Logger) (*retrieval.Service, error) {
	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	idx, err := vector.NewIndex(cfg.Vector.IndexType, emb.Dimensions(),
		vector.WithPaths(cfg.Storage.IndexPath, cfg.Storage.MetadataPath),
		vector.WithLogger(logger))
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := idx.Load(); err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	svc, err := retrieval.NewService(
		indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap),
		emb,
		idx,
		retrieval.WithLogger(logger),
		retrieval.WithStorage(store),
		retrieval.WithGenerator(llm.New(cfg.LLM, logger)),
		retrieval.WithExtractor(extract.NewExtractor()),
		retrieval.WithPersistOnIngest(cfg.Vector.PersistOnIngest),
	)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

// diskPaths lists the files counted by status.
func diskPaths(cfg *config.Config) []string {
	return append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.IndexPath, cfg.Storage.MetadataPath)
}
