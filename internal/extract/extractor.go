// Package extract turns uploaded and watched document files into plain text for ingestion.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type extractFunc func(content []byte) (string, error)

// formats maps a lower-case extension (with dot) to its extractor.
var formats = map[string]extractFunc{
	".txt":      extractPlain,
	".md":       extractPlain,
	".markdown": extractPlain,
	".rst":      extractPlain,
	".pdf":      extractPDF,
	".docx":     extractDOCX,
	".odt":      extractCat,
	".rtf":      extractCat,
	".xlsx":     extractExcel,
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with or without the leading dot, any case) has an extractor.
func Supported(ext string) bool {
	_, ok := formats[normalizeExt(ext)]
	return ok
}

// SupportedExtensions returns the known extensions, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(formats))
	for ext := range formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// FileType returns the extension without the dot, lower-cased ("pdf", "md", ...).
func FileType(path string) string {
	return strings.TrimPrefix(normalizeExt(filepath.Ext(path)), ".")
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := filepath.Ext(path)
	if !Supported(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on ext (e.g. ".pdf"). Unknown extensions
// return ErrUnsupportedFormat.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := formats[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
