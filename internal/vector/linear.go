package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// linearMagic tags files written by LinearIndex.
var linearMagic = [4]byte{'K', 'S', 'L', 'N'}

// LinearIndex is the reference backend: it keeps one slice per vector and scores every
// entry with an explicit loop followed by a stable sort.
type LinearIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewLinearIndex creates a linear-scan backend with the given dimension.
func NewLinearIndex(dimensions int) (*LinearIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &LinearIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (l *LinearIndex) Type() string {
	return string(IndexTypeLinear)
}

// Dimensions returns the vector dimension.
func (l *LinearIndex) Dimensions() int {
	return l.dimensions
}

// Size returns the number of stored vectors.
func (l *LinearIndex) Size() int {
	return len(l.vectors)
}

// Add appends copies of vectors.
func (l *LinearIndex) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != l.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), l.dimensions)
		}
	}
	for _, vec := range vectors {
		v := make([]float32, l.dimensions)
		copy(v, vec)
		l.vectors = append(l.vectors, v)
	}
	return nil
}

// Search scores every stored vector and returns the best k.
func (l *LinearIndex) Search(query []float32, k int) ([]Hit, error) {
	hits := make([]Hit, len(l.vectors))
	for i, vec := range l.vectors {
		hits[i] = Hit{Position: i, Score: InnerProduct(query, vec)}
	}
	// Hits start in position order, so a stable sort on score keeps lower positions first on ties.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Vector returns a copy of the vector at position.
func (l *LinearIndex) Vector(position int) []float32 {
	out := make([]float32, l.dimensions)
	copy(out, l.vectors[position])
	return out
}

// Reset removes all vectors.
func (l *LinearIndex) Reset() {
	l.vectors = make([][]float32, 0)
}

// Close is a no-op.
func (l *LinearIndex) Close() error { return nil }

// Encode writes magic (4), dimension (4), n (4), then per entry: position (4) and the vector
// (dimension*4 bytes), little endian.
func (l *LinearIndex) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(linearMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(l.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(l.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, vec := range l.vectors {
		if err := binary.Write(bw, binary.LittleEndian, uint32(i)); err != nil {
			return fmt.Errorf("write position: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads the format written by Encode and replaces the contents.
func (l *LinearIndex) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	if err := readHeader(br, linearMagic, l.dimensions); err != nil {
		return err
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: read count: %v", ErrConsistency, err)
	}
	vectors := make([][]float32, 0, n)
	for i := uint32(0); i < n; i++ {
		var pos uint32
		if err := binary.Read(br, binary.LittleEndian, &pos); err != nil {
			return fmt.Errorf("%w: read position: %v", ErrConsistency, err)
		}
		if pos != i {
			return fmt.Errorf("%w: position %d stored at slot %d", ErrConsistency, pos, i)
		}
		vec := make([]float32, l.dimensions)
		if err := binary.Read(br, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("%w: read vector %d: %v", ErrConsistency, i, err)
		}
		vectors = append(vectors, vec)
	}
	l.vectors = vectors
	return nil
}

// readHeader checks the magic and dimension prefix shared by both backend formats.
func readHeader(r io.Reader, magic [4]byte, dimensions int) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return fmt.Errorf("%w: read magic: %v", ErrConsistency, err)
	}
	if got != magic {
		return fmt.Errorf("%w: file was written by another backend (magic %q, want %q)", ErrConsistency, got[:], magic[:])
	}
	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("%w: read dimensions: %v", ErrConsistency, err)
	}
	if int(dim) != dimensions {
		return fmt.Errorf("%w: file has dimension %d, index expects %d", ErrConsistency, dim, dimensions)
	}
	return nil
}
