package vector

import (
	"math/rand"
	"testing"
)

func benchmarkSearch(b *testing.B, indexType string, n int) {
	const dim = 384
	idx, err := NewIndex(indexType, dim)
	if err != nil {
		b.Fatal(err)
	}
	r := rand.New(rand.NewSource(1))
	if err := idx.AddVectors(randomVectors(r, n, dim), emptyMetadata(n)); err != nil {
		b.Fatal(err)
	}
	query := randomVectors(r, 1, dim)[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(query, 10); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFlatSearch1K(b *testing.B) { benchmarkSearch(b, "flat", 1000) }
func BenchmarkFlatSearch20K(b *testing.B) { benchmarkSearch(b, "flat", 20000) }
func BenchmarkLinearSearch1K(b *testing.B) { benchmarkSearch(b, "linear", 1000) }
func BenchmarkLinearSearch20K(b *testing.B) { benchmarkSearch(b, "linear", 20000) }

func BenchmarkAddVectors(b *testing.B) {
	const dim = 384
	r := rand.New(rand.NewSource(1))
	vecs := randomVectors(r, 100, dim)
	meta := emptyMetadata(100)
	idx, err := NewIndex("flat", dim)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := idx.AddVectors(vecs, meta); err != nil {
			b.Fatal(err)
		}
	}
}
