// Package storage defines the document registry that tracks ingested documents.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Storage defines document registry operations.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	// UpdateStatus records a status transition with its chunk count and error message.
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int, errMsg string) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// ListByStatus returns every document in the given state, oldest first.
	ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.DocumentStatus]int64, error)

	Close() error
}
