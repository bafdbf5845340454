// Package models defines the documents, requests and responses shared by the service and its API.
package models

import "time"

// DocumentStatus is the ingest state of a document.
type DocumentStatus string

// Ingest moves a document from PROCESSING to INDEXING and ends in COMPLETED or FAILED.
const (
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusIndexing   DocumentStatus = "INDEXING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// Terminal reports whether no further transitions are expected.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is a registry record for one ingested document. Content is kept so the vector
// index can be rebuilt from the registry.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Name       string                 `json:"name" db:"name"`
	Content    string                 `json:"-" db:"content"`
	Status     DocumentStatus         `json:"status" db:"status"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	Error      string                 `json:"error,omitempty" db:"error"`
	Metadata   map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
