package models

import "time"

// SearchResult is one ranked chunk in an API response.
type SearchResult struct {
	Position        int                    `json:"position"`
	ChunkID         string                 `json:"chunk_id"`
	DocumentID      string                 `json:"document_id"`
	Content         string                 `json:"content"`
	SimilarityScore float64                `json:"similarity_score"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// SearchResponse is the response of /api/v1/search.
type SearchResponse struct {
	Query          string          `json:"query"`
	Results        []*SearchResult `json:"results"`
	QueryEmbedding []float32       `json:"query_embedding"`
	QueryTime      int64           `json:"query_time_ms"`
}

// QueryResponse is the response of /api/v1/query.
type QueryResponse struct {
	Query          string          `json:"query"`
	Answer         string          `json:"answer"`
	Sources        []*SearchResult `json:"sources"`
	QueryEmbedding []float32       `json:"query_embedding"`
}

// IngestResponse reports the outcome of an ingest.
type IngestResponse struct {
	DocumentID      string         `json:"document_id"`
	ChunksProcessed int            `json:"chunks_processed"`
	Status          DocumentStatus `json:"status"`
}

// HealthResponse is the response of /health.
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Service          string    `json:"service"`
	IndexedDocuments int       `json:"indexed_documents"`
}

// StatusResponse describes the index and registry.
type StatusResponse struct {
	IndexType        string                   `json:"index_type"`
	Dimensions       int                      `json:"dimensions"`
	TotalVectors     int                      `json:"total_vectors"`
	Embedder         string                   `json:"embedder"`
	TotalDocuments   int64                    `json:"total_documents"`
	DocumentsByState map[DocumentStatus]int64 `json:"documents_by_status"`
	DiskUsageBytes   int64                    `json:"disk_usage_bytes"`
}
