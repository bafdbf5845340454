//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"fmt"
	"io"
)

// FAISSIndex is unavailable without the faiss build tag and cgo.
type FAISSIndex struct{}

// NewFAISSIndex reports ErrUnavailable. Build with -tags=faiss and install libfaiss_c.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, fmt.Errorf("%w: faiss (build with -tags=faiss and install the FAISS C library)", ErrUnavailable)
}

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (f *FAISSIndex) Dimensions() int { return 0 }

func (f *FAISSIndex) Size() int { return 0 }

func (f *FAISSIndex) Add([][]float32) error { return ErrUnavailable }

func (f *FAISSIndex) Search([]float32, int) ([]Hit, error) { return nil, ErrUnavailable }

func (f *FAISSIndex) Vector(int) []float32 { return nil }

func (f *FAISSIndex) Reset() {}

func (f *FAISSIndex) Encode(io.Writer) error { return ErrUnavailable }

func (f *FAISSIndex) Decode(io.Reader) error { return ErrUnavailable }

func (f *FAISSIndex) Close() error { return nil }
