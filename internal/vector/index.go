// Package vector provides the persisted similarity index and its search backends.
package vector

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend stores normalized vectors at dense positions and ranks them by inner product.
// Backends are not safe for concurrent use; Index serializes access.
type Backend interface {
	// Type returns the index type identifier.
	Type() string
	Dimensions() int
	Size() int
	// Add appends vectors at positions [Size(), Size()+len(vectors)). All or nothing.
	Add(vectors [][]float32) error
	// Search returns the top-k hits for an already normalized query, 0 < k <= Size(), ranked
	// by score and then by lower position.
	Search(query []float32, k int) ([]Hit, error)
	// Vector returns a copy of the stored vector at position.
	Vector(position int) []float32
	Reset()
	// Encode writes the backend-native serialized form.
	Encode(w io.Writer) error
	// Decode replaces the contents with a form written by Encode.
	Decode(r io.Reader) error
	// Close releases resources held outside the Go heap.
	Close() error
}

// Hit is a single backend search hit.
type Hit struct {
	Position int
	Score    float64
}

// Result is a search hit with a copy of the entry's metadata.
type Result struct {
	Position   int      `json:"position"`
	Similarity float64  `json:"similarity"`
	Metadata   Metadata `json:"metadata"`
}

// Entry is a copy of one stored index entry.
type Entry struct {
	Position int
	Vector   []float32
	Metadata Metadata
}

// Index owns normalized vectors plus parallel metadata. Adds and loads are exclusive;
// searches run concurrently with each other.
type Index struct {
	backend      Backend
	metadata     []Metadata
	indexPath    string
	metadataPath string
	logger       *zap.Logger
	mu           sync.RWMutex
	persistMu    sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

// WithPaths sets the vector blob and metadata file paths used by Persist and Load.
func WithPaths(indexPath, metadataPath string) Option {
	return func(x *Index) {
		x.indexPath = indexPath
		x.metadataPath = metadataPath
	}
}

// WithLogger sets a logger for index lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// NewIndex creates an empty index of the given type ("flat", "linear" or "faiss").
func NewIndex(indexType string, dimensions int, opts ...Option) (*Index, error) {
	backend, err := NewBackend(indexType, dimensions)
	if err != nil {
		return nil, wrapError("new", err)
	}
	return NewIndexWithBackend(backend, opts...), nil
}

// NewIndexWithBackend wraps an existing, empty backend.
func NewIndexWithBackend(backend Backend, opts ...Option) *Index {
	x := &Index{
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Type returns the backend type identifier.
func (x *Index) Type() string {
	return x.backend.Type()
}

// Dimensions returns the fixed vector dimension.
func (x *Index) Dimensions() int {
	return x.backend.Dimensions()
}

// AddVectors normalizes and appends vectors with their metadata. Input is validated in full
// before any state changes, so a failed call appends nothing. A missing chunk_id is
// synthesized as chunk_{position}_{suffix}.
func (x *Index) AddVectors(vectors [][]float32, metadatas []map[string]any) error {
	if len(vectors) != len(metadatas) {
		return wrapError("add", fmt.Errorf("%w: %d vectors, %d metadata records", ErrLengthMismatch, len(vectors), len(metadatas)))
	}
	dim := x.backend.Dimensions()
	normalized := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim {
			return wrapError("add", fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), dim))
		}
		if !isFinite(vec) {
			return wrapError("add", fmt.Errorf("%w: vector %d", ErrInvalidVector, i))
		}
		normalized[i] = Normalize(vec)
	}
	metas := make([]Metadata, len(metadatas))
	for i, m := range metadatas {
		meta, err := NormalizeMetadata(m)
		if err != nil {
			return wrapError("add", fmt.Errorf("metadata %d: %w", i, err))
		}
		metas[i] = meta
	}
	if len(vectors) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	base := x.backend.Size()
	for i, meta := range metas {
		if _, ok := meta[KeyChunkID]; !ok {
			meta[KeyChunkID] = fmt.Sprintf("chunk_%d_%s", base+i, uuid.NewString()[:8])
		}
	}
	if err := x.backend.Add(normalized); err != nil {
		return wrapError("add", err)
	}
	x.metadata = append(x.metadata, metas...)
	x.logger.Debug("vectors added",
		zap.Int("count", len(vectors)),
		zap.Int("total", x.backend.Size()))
	return nil
}

// Search returns the top min(k, TotalVectors()) entries by cosine similarity, descending,
// with ties broken by lower position. An empty index or k <= 0 yields an empty slice.
func (x *Index) Search(query []float32, k int) ([]Result, error) {
	dim := x.backend.Dimensions()
	if len(query) != dim {
		return nil, wrapError("search", fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), dim))
	}
	if !isFinite(query) {
		return nil, wrapError("search", ErrInvalidVector)
	}
	q := Normalize(query)

	x.mu.RLock()
	defer x.mu.RUnlock()
	n := x.backend.Size()
	if k <= 0 || n == 0 {
		return []Result{}, nil
	}
	if k > n {
		k = n
	}
	hits, err := x.backend.Search(q, k)
	if err != nil {
		return nil, wrapError("search", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Position:   h.Position,
			Similarity: h.Score,
			Metadata:   x.metadata[h.Position].Clone(),
		}
	}
	return results, nil
}

// Entry returns a copy of the entry at position.
func (x *Index) Entry(position int) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if position < 0 || position >= len(x.metadata) {
		return Entry{}, false
	}
	return Entry{
		Position: position,
		Vector:   x.backend.Vector(position),
		Metadata: x.metadata[position].Clone(),
	}, true
}

// TotalVectors returns the current entry count.
func (x *Index) TotalVectors() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.backend.Size()
}

// Reset drops every entry. Single entries cannot be deleted; rebuilding is Reset plus re-adding.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.backend.Reset()
	x.metadata = nil
	x.logger.Info("vector index reset", zap.String("type", x.backend.Type()))
}

// Close releases the backend.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.backend.Close()
}
