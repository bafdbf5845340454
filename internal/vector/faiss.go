//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"io"
	"os"
	"sort"
	"unsafe"
)

const (
	// faissCandidatePad is the minimum number of extra candidates fetched beyond k.
	faissCandidatePad = 16
	// faissScanRows is the number of rows reconstructed at a time by exactSearch.
	faissScanRows = 4096
)

// FAISSIndex is a FAISS IndexFlatIP. FAISS scores in float32, so Search rescores its candidates
// with InnerProduct and re-ranks them with the shared tie rule. Results match LinearIndex.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
}

// NewFAISSIndex creates an inner-product FAISS index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var flat *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("create faiss index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      (*C.FaissIndex)(unsafe.Pointer(flat)),
		dimensions: dimensions,
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Size returns the number of stored vectors.
func (f *FAISSIndex) Size() int {
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Add appends the batch in one faiss_Index_add call.
func (f *FAISSIndex) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), f.dimensions)
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("faiss add: %s", faissLastError())
	}
	return nil
}

// Search asks FAISS for k plus padding candidates, rescores them exactly and keeps the best
// k. When the k-th exact score is too close to the weakest candidate for float32 rounding to
// rule out a missed row, it falls back to an exact scan.
func (f *FAISSIndex) Search(query []float32, k int) ([]Hit, error) {
	n := f.Size()
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}
	want := k + max(k, faissCandidatePad)
	if want > n {
		want = n
	}
	distances := make([]float32, want)
	labels := make([]int64, want)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(want),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("faiss search: %s", faissLastError())
	}

	row := make([]float32, f.dimensions)
	hits := make([]Hit, 0, want)
	floor := float64(distances[0])
	for i, label := range labels {
		if label < 0 {
			continue
		}
		if err := f.reconstruct(int(label), row); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Position: int(label), Score: InnerProduct(query, row)})
		if d := float64(distances[i]); d < floor {
			floor = d
		}
	}
	sort.Slice(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	if want < n && (len(hits) < k || hits[k-1].Score <= floor+f.tolerance()) {
		return f.exactSearch(query, k)
	}
	return hits[:k], nil
}

// tolerance bounds the float32 rounding error of a unit-vector inner product.
func (f *FAISSIndex) tolerance() float64 {
	return 2*float64(f.dimensions)*1.2e-7 + 1e-6
}

// exactSearch scores every row with InnerProduct.
func (f *FAISSIndex) exactSearch(query []float32, k int) ([]Hit, error) {
	n := f.Size()
	scores := make([]float64, n)
	buf := make([]float32, faissScanRows*f.dimensions)
	for start := 0; start < n; start += faissScanRows {
		rows := faissScanRows
		if start+rows > n {
			rows = n - start
		}
		if ret := C.faiss_Index_reconstruct_n(f.index, C.idx_t(start), C.idx_t(rows), (*C.float)(unsafe.Pointer(&buf[0]))); ret != 0 {
			return nil, fmt.Errorf("faiss reconstruct rows %d-%d: %s", start, start+rows, faissLastError())
		}
		for i := 0; i < rows; i++ {
			scores[start+i] = InnerProduct(query, buf[i*f.dimensions:(i+1)*f.dimensions])
		}
	}
	return topHits(scores, k), nil
}

func (f *FAISSIndex) reconstruct(position int, dst []float32) error {
	if ret := C.faiss_Index_reconstruct(f.index, C.idx_t(position), (*C.float)(unsafe.Pointer(&dst[0]))); ret != 0 {
		return fmt.Errorf("faiss reconstruct %d: %s", position, faissLastError())
	}
	return nil
}

// Vector returns a copy of the vector at position, or nil if FAISS cannot reconstruct it.
func (f *FAISSIndex) Vector(position int) []float32 {
	out := make([]float32, f.dimensions)
	if err := f.reconstruct(position, out); err != nil {
		return nil
	}
	return out
}

// Reset removes all vectors.
func (f *FAISSIndex) Reset() {
	// IndexFlat only clears its code buffer here.
	_ = C.faiss_Index_reset(f.index)
}

// Encode writes the index with the FAISS index writer.
func (f *FAISSIndex) Encode(w io.Writer) error {
	tmp, err := faissTempPath()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	cPath := C.CString(tmp)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("faiss write index: %s", faissLastError())
	}
	src, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy faiss index: %w", err)
	}
	return nil
}

// Decode reads an index written by Encode. Anything other than an IndexFlatIP of the same
// dimension is rejected with ErrConsistency.
func (f *FAISSIndex) Decode(r io.Reader) error {
	tmp, err := faissTempPath()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	dst, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, r)
	if err := dst.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return fmt.Errorf("%w: read faiss index: %v", ErrConsistency, copyErr)
	}

	cPath := C.CString(tmp)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("%w: file is not a faiss index: %s", ErrConsistency, faissLastError())
	}
	if C.faiss_IndexFlatIP_cast(loaded) == nil {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: faiss file does not hold an inner-product flat index", ErrConsistency)
	}
	if dim := int(C.faiss_Index_d(loaded)); dim != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: file has dimension %d, index expects %d", ErrConsistency, dim, f.dimensions)
	}
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

func faissTempPath() (string, error) {
	tmp, err := os.CreateTemp("", "kensaku-faiss-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
