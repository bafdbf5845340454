package retrieval

import (
	"strconv"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/vector"
)

// SearchResults converts ranked chunks to API results, lifting chunk_id, document_id and
// content out of the metadata. Hits without ids get unknown_{i} and unknown.
func SearchResults(ranked []RankedChunk) []*models.SearchResult {
	out := make([]*models.SearchResult, len(ranked))
	for i, rc := range ranked {
		meta := make(map[string]interface{}, len(rc.Metadata))
		for k, v := range rc.Metadata {
			switch k {
			case vector.KeyChunkID, vector.KeyDocumentID, vector.KeyContent:
			default:
				meta[k] = v
			}
		}
		chunkID := rc.ChunkID
		if chunkID == "" {
			chunkID = "unknown_" + strconv.Itoa(i)
		}
		docID := rc.DocumentID
		if docID == "" {
			docID = "unknown"
		}
		out[i] = &models.SearchResult{
			Position:        rc.Position,
			ChunkID:         chunkID,
			DocumentID:      docID,
			Content:         rc.Content,
			SimilarityScore: rc.Similarity,
			Metadata:        meta,
		}
	}
	return out
}
