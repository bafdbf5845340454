package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// NewDocumentID returns an id of the form doc_{8 hex}.
func NewDocumentID() string {
	id := uuid.New()
	return fmt.Sprintf("doc_%x", id[:4])
}

// IngestDocument indexes input and records it in the registry, moving the record through
// PROCESSING, INDEXING and finally COMPLETED or FAILED. An empty ID is generated. A record
// with the same ID is replaced; when the replaced record was COMPLETED its chunks are still
// in the index, so the index is rebuilt without them before the new content is added. The
// returned document reflects the final state even when ingestion failed.
func (s *Service) IngestDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyContent
	}
	if input.ID == "" {
		input.ID = NewDocumentID()
	}
	doc := &models.Document{
		ID:       input.ID,
		Name:     input.Name,
		Content:  input.Content,
		Status:   models.StatusProcessing,
		Metadata: input.Metadata,
	}

	s.rebuildMu.RLock()
	stale, err := s.createRecord(ctx, doc)
	if err != nil {
		s.rebuildMu.RUnlock()
		return nil, err
	}
	if stale {
		s.rebuildMu.RUnlock()
		s.rebuildMu.Lock()
		defer s.rebuildMu.Unlock()
	} else {
		defer s.rebuildMu.RUnlock()
	}

	s.setStatus(ctx, doc, models.StatusIndexing, 0, "")
	if stale {
		s.logger.Info("dropping replaced chunks", zap.String("document_id", doc.ID))
		if _, err := s.rebuild(ctx); err != nil {
			s.setStatus(ctx, doc, models.StatusFailed, 0, err.Error())
			return doc, fmt.Errorf("ingest %s: %w", doc.ID, err)
		}
	}
	n, err := s.Ingest(ctx, doc.Content, doc.ID, doc.Name, doc.Metadata)
	if err == nil && n == 0 {
		err = ErrEmptyContent
	}
	if err != nil {
		s.setStatus(ctx, doc, models.StatusFailed, 0, err.Error())
		return doc, fmt.Errorf("ingest %s: %w", doc.ID, err)
	}
	s.setStatus(ctx, doc, models.StatusCompleted, n, "")
	return doc, nil
}

// createRecord registers doc, replacing any record with the same ID. It reports whether the
// replaced record was COMPLETED.
func (s *Service) createRecord(ctx context.Context, doc *models.Document) (bool, error) {
	if s.storage == nil {
		return false, nil
	}
	stale := false
	if prev, err := s.storage.GetDocument(ctx, doc.ID); err == nil {
		stale = prev.Status == models.StatusCompleted
		if err := s.storage.DeleteDocument(ctx, doc.ID); err != nil {
			return false, fmt.Errorf("replace document %s: %w", doc.ID, err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("lookup document %s: %w", doc.ID, err)
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		return false, fmt.Errorf("register document: %w", err)
	}
	s.logger.Info("document status",
		zap.String("document_id", doc.ID),
		zap.String("status", string(doc.Status)))
	return stale, nil
}

// setStatus records a transition. Registry failures are logged; they never fail an ingest.
func (s *Service) setStatus(ctx context.Context, doc *models.Document, status models.DocumentStatus, chunks int, errMsg string) {
	doc.Status = status
	doc.ChunkCount = chunks
	doc.Error = errMsg
	if s.storage != nil {
		if err := s.storage.UpdateStatus(ctx, doc.ID, status, chunks, errMsg); err != nil {
			s.logger.Warn("update document status failed",
				zap.String("document_id", doc.ID),
				zap.String("status", string(status)),
				zap.Error(err))
		}
	}
	fields := []zap.Field{
		zap.String("document_id", doc.ID),
		zap.String("status", string(status)),
	}
	if status == models.StatusFailed {
		fields = append(fields, zap.String("error", errMsg))
		s.logger.Warn("document status", fields...)
		return
	}
	if status.Terminal() {
		fields = append(fields, zap.Int("chunks", chunks))
	}
	s.logger.Info("document status", fields...)
}

// GetDocument returns a registry record, or storage.ErrNotFound.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return s.storage.GetDocument(ctx, id)
}

// ListDocuments returns registry records newest first.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if s.storage == nil {
		return []*models.Document{}, nil
	}
	return s.storage.ListDocuments(ctx, offset, limit)
}

// Status reports index and registry counters. diskPaths are summed into DiskUsageBytes.
func (s *Service) Status(ctx context.Context, diskPaths ...string) (*models.StatusResponse, error) {
	st := &models.StatusResponse{
		IndexType:        s.index.Type(),
		Dimensions:       s.index.Dimensions(),
		TotalVectors:     s.index.TotalVectors(),
		Embedder:         s.embedder.Name(),
		DocumentsByState: map[models.DocumentStatus]int64{},
	}
	if s.storage != nil {
		total, err := s.storage.CountDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("count documents: %w", err)
		}
		byState, err := s.storage.CountByStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("count documents by status: %w", err)
		}
		st.TotalDocuments = total
		st.DocumentsByState = byState
	}
	if len(diskPaths) > 0 {
		usage, err := storage.DiskUsageBytes(diskPaths...)
		if err != nil {
			return nil, fmt.Errorf("disk usage: %w", err)
		}
		st.DiskUsageBytes = usage
	}
	return st, nil
}

// Rebuild empties the index and re-ingests every COMPLETED registry document from its stored
// content, in creation order. It returns the number of documents replayed. A document that
// fails is marked FAILED and the rebuild continues.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.rebuild(ctx)
}

func (s *Service) rebuild(ctx context.Context) (int, error) {
	if s.storage == nil {
		return 0, errors.New("rebuild requires a document registry")
	}
	docs, err := s.storage.ListByStatus(ctx, models.StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	s.index.Reset()
	replayed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		n, err := s.Ingest(ctx, doc.Content, doc.ID, doc.Name, doc.Metadata)
		if err == nil && n == 0 {
			err = ErrEmptyContent
		}
		if err != nil {
			s.setStatus(ctx, doc, models.StatusFailed, 0, err.Error())
			continue
		}
		if n != doc.ChunkCount {
			s.setStatus(ctx, doc, models.StatusCompleted, n, "")
		}
		replayed++
	}
	s.logger.Info("index rebuilt",
		zap.Int("documents", replayed),
		zap.Int("total_vectors", s.index.TotalVectors()))
	return replayed, nil
}
