// Package retrieval wires chunking, embedding and the vector index into ingest and query
// operations, with an optional document registry and answer generator.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/llm"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// Metadata keys written for every ingested chunk, in addition to vector.KeyChunkID,
// vector.KeyDocumentID and vector.KeyContent.
const (
	KeyDocumentName        = "document_name"
	KeyChunkIndex          = "chunk_index"
	KeyTotalChunks         = "total_chunks"
	KeySection             = "section"
	KeyOffsetStart         = "offset_start"
	KeyOffsetEnd           = "offset_end"
	KeyProcessingTimestamp = "processing_timestamp"
)

// ErrEmptyContent is returned when a document has no text to index.
var ErrEmptyContent = errors.New("document has no content")

// RankedChunk is one query hit projected from the index.
type RankedChunk struct {
	Position   int             `json:"position"`
	Similarity float64         `json:"similarity"`
	ChunkID    string          `json:"chunk_id"`
	DocumentID string          `json:"document_id"`
	Content    string          `json:"content"`
	Metadata   vector.Metadata `json:"metadata"`
}

// Service runs ingest and query against injected collaborators. It holds no index state of
// its own; the embedder always runs before the index lock is taken.
type Service struct {
	chunker         *indexer.Chunker
	embedder        embedding.Embedder
	index           *vector.Index
	storage         storage.Storage
	generator       llm.Generator
	extractor       *extract.Extractor
	persistOnIngest bool
	logger          *zap.Logger
	now             func() time.Time

	// rebuildMu is held shared by registry ingests and exclusively by Rebuild.
	rebuildMu sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for ingest, query and registry events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStorage attaches a document registry. Without one, IngestDocument indexes but records
// nothing and Rebuild has nothing to replay.
func WithStorage(st storage.Storage) Option {
	return func(s *Service) { s.storage = st }
}

// WithGenerator sets the answer generator. Defaults to llm.MockGenerator.
func WithGenerator(g llm.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithExtractor sets the file text extractor. Defaults to extract.NewExtractor().
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithPersistOnIngest persists the index after every successful ingest batch.
func WithPersistOnIngest(on bool) Option {
	return func(s *Service) { s.persistOnIngest = on }
}

// NewService creates a service. The chunker, embedder and index are required, and the
// embedder must produce vectors of the index's dimension.
func NewService(chunker *indexer.Chunker, embedder embedding.Embedder, index *vector.Index, opts ...Option) (*Service, error) {
	if chunker == nil || embedder == nil || index == nil {
		return nil, errors.New("retrieval: chunker, embedder and index are required")
	}
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("retrieval: embedder %s produces %d dimensions, index expects %d",
			embedder.Name(), embedder.Dimensions(), index.Dimensions())
	}
	s := &Service{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		generator: llm.MockGenerator{},
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Index returns the underlying vector index.
func (s *Service) Index() *vector.Index {
	return s.index
}

// Embedder returns the embedder used for chunks and queries.
func (s *Service) Embedder() embedding.Embedder {
	return s.embedder
}

// Ingest chunks text, embeds every chunk and appends them to the index as one batch. It
// returns the number of chunks indexed; text with no sentences indexes nothing. Keys in extra
// are copied onto every chunk and win over the generated keys.
func (s *Service) Ingest(ctx context.Context, text, documentID, documentName string, extra map[string]interface{}) (int, error) {
	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, ch := range chunks {
		meta := map[string]interface{}{
			vector.KeyDocumentID:   documentID,
			KeyDocumentName:        documentName,
			vector.KeyChunkID:      fmt.Sprintf("%s_chunk_%d", documentID, i),
			KeyChunkIndex:          ch.ChunkIndex,
			KeyTotalChunks:         ch.TotalChunks,
			KeySection:             ch.Section,
			KeyOffsetStart:         ch.OffsetStart,
			KeyOffsetEnd:           ch.OffsetEnd,
			KeyProcessingTimestamp: timestamp,
			vector.KeyContent:      ch.Content,
		}
		for k, v := range extra {
			meta[k] = v
		}
		metadatas[i] = meta
	}
	if err := s.index.AddVectors(vectors, metadatas); err != nil {
		return 0, err
	}
	s.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Int("total_vectors", s.index.TotalVectors()))

	if s.persistOnIngest {
		if err := s.index.Persist(); err != nil {
			// The batch is in memory; the next successful persist writes it.
			s.logger.Error("persist after ingest failed", zap.String("document_id", documentID), zap.Error(err))
		}
	}
	return len(chunks), nil
}

// Query embeds text once and returns the top k chunks by cosine similarity. Blank text
// yields no results and no error.
func (s *Service) Query(ctx context.Context, text string, k int) ([]RankedChunk, error) {
	ranked, _, err := s.Search(ctx, text, k)
	return ranked, err
}

// Search is Query that also returns the query embedding. Blank text is not embedded, so the
// embedding is nil.
func (s *Service) Search(ctx context.Context, text string, k int) ([]RankedChunk, []float32, error) {
	if strings.TrimSpace(text) == "" {
		return []RankedChunk{}, nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.index.Search(queryVec, k)
	if err != nil {
		return nil, nil, err
	}
	ranked := make([]RankedChunk, len(results))
	for i, r := range results {
		ranked[i] = RankedChunk{
			Position:   r.Position,
			Similarity: r.Similarity,
			ChunkID:    r.Metadata.String(vector.KeyChunkID),
			DocumentID: r.Metadata.String(vector.KeyDocumentID),
			Content:    r.Metadata.String(vector.KeyContent),
			Metadata:   r.Metadata,
		}
	}
	s.logger.Debug("query",
		zap.String("query", utils.Truncate(text, 50)),
		zap.Int("k", k),
		zap.Int("hits", len(ranked)))
	return ranked, queryVec, nil
}

// Relevant drops hits whose similarity is exactly zero.
func Relevant(ranked []RankedChunk) []RankedChunk {
	out := make([]RankedChunk, 0, len(ranked))
	for _, r := range ranked {
		if r.Similarity != 0 {
			out = append(out, r)
		}
	}
	return out
}

// Persist writes the index files.
func (s *Service) Persist() error {
	return s.index.Persist()
}

// Reset empties the index. Registry records are kept so Rebuild can replay them.
func (s *Service) Reset() {
	s.index.Reset()
}

// Close releases the embedder, the registry and the index.
func (s *Service) Close() error {
	var errs []error
	if err := s.embedder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close embedder: %w", err))
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if err := s.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	return errors.Join(errs...)
}
