package vector

import "fmt"

// IndexType represents the backend used by an Index.
type IndexType string

const (
	// IndexTypeFlat is the optimized exact backend (contiguous matrix, parallel scoring, heap top-k).
	IndexTypeFlat IndexType = "flat"
	// IndexTypeLinear is the reference backend (per-vector loop and full sort).
	IndexTypeLinear IndexType = "linear"
	// IndexTypeFAISS is a FAISS IndexFlatIP; it needs the faiss build tag and cgo.
	IndexTypeFAISS IndexType = "faiss"
)

// NewBackend creates a backend of the specified type.
// Supported types: "flat" (default), "linear", "faiss". The choice is fixed for the lifetime of
// the persisted files: a file written by one backend does not load into another.
func NewBackend(indexType string, dimensions int) (Backend, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions)
	case IndexTypeLinear:
		return NewLinearIndex(dimensions)
	case IndexTypeFAISS:
		f, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: flat, linear, faiss)", ErrUnknownIndexType, indexType)
	}
}
