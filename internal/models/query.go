package models

import (
	"fmt"
	"strings"
)

// SearchRequest is the body of /api/v1/search and /api/v1/query.
type SearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
	TopK   int    `json:"top_k,omitempty"`
}

// Validate clamps TopK to [1, maxK], using defaultK when unset. A blank query is valid and
// matches nothing.
func (q *SearchRequest) Validate(defaultK, maxK int) error {
	if q.TopK <= 0 {
		q.TopK = defaultK
	}
	if maxK > 0 && q.TopK > maxK {
		q.TopK = maxK
	}
	return nil
}

// IngestRequest is the body of /api/v1/ingest. Metadata "title" (or "source_file") names the document.
type IngestRequest struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Validate rejects empty content.
func (r *IngestRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content cannot be empty")
	}
	return nil
}

// DocumentName returns the title, then source_file, then a placeholder.
func (r *IngestRequest) DocumentName() string {
	for _, key := range []string{"title", "source_file"} {
		if s, ok := r.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return "Unknown Document"
}
