package retrieval

import (
	"testing"

	"github.com/hyperjump/kensaku/internal/vector"
)

func TestSearchResults(t *testing.T) {
	ranked := []RankedChunk{
		{
			Position:   4,
			Similarity: 0.5,
			ChunkID:    "d_chunk_1",
			DocumentID: "d",
			Content:    "text",
			Metadata: vector.Metadata{
				vector.KeyChunkID:    "d_chunk_1",
				vector.KeyDocumentID: "d",
				vector.KeyContent:    "text",
				KeyChunkIndex:        int64(1),
			},
		},
		{Position: 7, Similarity: 0.25, Metadata: vector.Metadata{}},
	}
	got := SearchResults(ranked)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	first := got[0]
	if first.Position != 4 || first.ChunkID != "d_chunk_1" || first.DocumentID != "d" || first.Content != "text" || first.SimilarityScore != 0.5 {
		t.Errorf("first = %+v", first)
	}
	if len(first.Metadata) != 1 || first.Metadata[KeyChunkIndex] != int64(1) {
		t.Errorf("metadata = %v", first.Metadata)
	}
	if got[1].ChunkID != "unknown_1" || got[1].DocumentID != "unknown" {
		t.Errorf("second = %+v", got[1])
	}
}
