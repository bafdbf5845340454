package vector

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// flatMagic tags files written by FlatIndex.
var flatMagic = [4]byte{'K', 'S', 'F', 'L'}

// defaultBlockRows is the number of rows scored per goroutine; smaller indexes are scored inline.
const defaultBlockRows = 4096

// FlatIndex is the optimized exact backend. Vectors live in one contiguous row-major matrix,
// scoring is split into row blocks computed in parallel, and top-k selection uses a bounded
// heap instead of sorting every score. Results are identical to LinearIndex.
type FlatIndex struct {
	dimensions int
	data       []float32
	n          int
	blockRows  int
}

// NewFlatIndex creates a flat inner-product backend with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		blockRows:  defaultBlockRows,
	}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	return f.n
}

// Add appends the batch to the matrix in one copy.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), f.dimensions)
		}
	}
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}
	f.data = append(f.data, flat...)
	f.n += len(vectors)
	return nil
}

func (f *FlatIndex) row(i int) []float32 {
	return f.data[i*f.dimensions : (i+1)*f.dimensions]
}

// Search scores all rows and keeps the best k in a heap.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if k > f.n {
		k = f.n
	}
	if k <= 0 {
		return nil, nil
	}
	return topHits(f.scoreAll(query), k), nil
}

// topHits selects the best k scores with a bounded heap, ranked by better.
func topHits(scores []float64, k int) []Hit {
	h := make(hitHeap, 0, k)
	for i, s := range scores {
		c := Hit{Position: i, Score: s}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	hits := []Hit(h)
	sort.Slice(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	return hits
}

// scoreAll computes the inner product of query with every row.
func (f *FlatIndex) scoreAll(query []float32) []float64 {
	scores := make([]float64, f.n)
	block := f.blockRows
	if block <= 0 || f.n <= block {
		for i := 0; i < f.n; i++ {
			scores[i] = InnerProduct(query, f.row(i))
		}
		return scores
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < f.n; start += block {
		end := start + block
		if end > f.n {
			end = f.n
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				scores[i] = InnerProduct(query, f.row(i))
			}
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// Vector returns a copy of the row at position.
func (f *FlatIndex) Vector(position int) []float32 {
	out := make([]float32, f.dimensions)
	copy(out, f.row(position))
	return out
}

// Reset removes all vectors.
func (f *FlatIndex) Reset() {
	f.data = nil
	f.n = 0
}

// Close is a no-op.
func (f *FlatIndex) Close() error { return nil }

// Encode writes magic (4), dimension (4), n (4), then the n*dimension matrix as little-endian
// float32 in a single block.
func (f *FlatIndex) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.n)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if f.n > 0 {
		if err := binary.Write(bw, binary.LittleEndian, f.data[:f.n*f.dimensions]); err != nil {
			return fmt.Errorf("write matrix: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads the format written by Encode and replaces the contents.
func (f *FlatIndex) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	if err := readHeader(br, flatMagic, f.dimensions); err != nil {
		return err
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: read count: %v", ErrConsistency, err)
	}
	data := make([]float32, int(n)*f.dimensions)
	if n > 0 {
		if err := binary.Read(br, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("%w: read matrix: %v", ErrConsistency, err)
		}
	}
	f.data = data
	f.n = int(n)
	return nil
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) { *h = append(*h, x.(Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
