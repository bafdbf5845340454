package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/fileid"
	"github.com/hyperjump/kensaku/internal/models"
)

// FileInfo describes an uploaded or local file.
type FileInfo struct {
	Title  string
	Author string
	Source string
}

// IngestBytes extracts text from an uploaded file and ingests it as a new document. The
// document is named by info.Title, falling back to the file name.
func (s *Service) IngestBytes(ctx context.Context, filename string, content []byte, info FileInfo) (*models.Document, error) {
	if filename == "" {
		return nil, errors.New("file name is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !extract.Supported(ext) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", extract.ErrUnsupportedFormat, ext,
			strings.Join(extract.SupportedExtensions(), ", "))
	}
	text, err := s.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyContent)
	}
	title := info.Title
	if title == "" {
		title = filepath.Base(filename)
	}
	return s.IngestDocument(ctx, &models.DocumentInput{
		Name:     title,
		Content:  text,
		Metadata: fileMetadata(filename, int64(len(content)), info, title),
	})
}

func fileMetadata(filename string, size int64, info FileInfo, title string) map[string]interface{} {
	return map[string]interface{}{
		"title":       title,
		"author":      info.Author,
		"source":      info.Source,
		"source_file": filepath.Base(filename),
		"file_type":   strings.ToLower(filepath.Ext(filename)),
		"file_size":   size,
	}
}

// IngestFile reads a local file and ingests it under an id derived from its absolute path,
// so re-ingesting the same path replaces its registry record. Replacing a completed file
// rebuilds the index first, so chunk ids of the old version never point at stale content;
// without a registry the old chunks stay until the index is reset. If allowedExts is non-empty
// the extension must be listed. Unchanged files (same mtime and size as the registry
// record) are skipped; the returned bool reports whether the file was ingested.
func (s *Service) IngestFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return false, fmt.Errorf("extension %q not in allowed list", ext)
	}
	if !extract.Supported(ext) {
		return false, fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.DocID(absPath)
	stamp := fileid.StampOf(absPath, info)
	if s.unchanged(ctx, docID, stamp) {
		s.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return false, nil
	}

	text, err := s.extractor.Extract(absPath)
	if err != nil {
		return false, fmt.Errorf("extract content: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return false, fmt.Errorf("%s: %w", absPath, ErrEmptyContent)
	}
	name := filepath.Base(absPath)
	meta := fileMetadata(absPath, info.Size(), FileInfo{Source: absPath}, name)
	for k, v := range stamp.Metadata() {
		meta[k] = v
	}
	if _, err := s.IngestDocument(ctx, &models.DocumentInput{
		ID:       docID,
		Name:     name,
		Content:  text,
		Metadata: meta,
	}); err != nil {
		return false, err
	}
	s.logger.Debug("file ingested", zap.String("path", absPath), zap.String("document_id", docID))
	return true, nil
}

// unchanged reports whether the registry already holds a COMPLETED record for this version.
func (s *Service) unchanged(ctx context.Context, docID string, stamp fileid.Stamp) bool {
	if s.storage == nil {
		return false
	}
	doc, err := s.storage.GetDocument(ctx, docID)
	if err != nil {
		return false
	}
	return doc.Status == models.StatusCompleted && stamp.Matches(doc.Metadata)
}

// IngestDirectory walks dir and ingests each regular file whose extension is allowed and
// supported. It returns the number of files ingested and the first error.
func (s *Service) IngestDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if !extract.Supported(ext) {
			return nil
		}
		// Follow symlinks, but only to regular files.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		ingested, ingestErr := s.IngestFile(ctx, path, allowedExts)
		if ingestErr != nil {
			return ingestErr
		}
		if ingested {
			n++
		}
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
