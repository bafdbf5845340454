// Package cli provides output formatting and an HTTP client for the kensaku command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format. The query embedding is
// only included in JSON output.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Position, r.SimilarityScore, r.ChunkID, TruncateWords(oneLine(r.Content), 12))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d results in %dms\n\n", len(response.Results), response.QueryTime)
		for i, r := range response.Results {
			writeOneResult(w, i+1, r)
		}
		return nil
	}
}

func writeOneResult(w io.Writer, rank int, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Similarity: %.4f | Position: %d\n", rank, result.SimilarityScore, result.Position)
	fmt.Fprintf(w, "Chunk: %s (document %s)\n", result.ChunkID, result.DocumentID)
	if name, ok := result.Metadata["document_name"].(string); ok && name != "" {
		fmt.Fprintf(w, "Document: %s\n", name)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Content, 200))
	fmt.Fprintln(w)
}

// WriteAnswer writes a generated answer followed by its sources.
func WriteAnswer(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "%s\n", response.Answer)
	if len(response.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range response.Sources {
		fmt.Fprintf(w, "  [%d] %s (%.4f) %s\n", i+1, s.ChunkID, s.SimilarityScore, TruncateWords(oneLine(s.Content), 12))
	}
	return nil
}

// WriteStatus writes index and registry counters.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "index_type:         %s\n", status.IndexType)
	fmt.Fprintf(w, "dimensions:         %d\n", status.Dimensions)
	fmt.Fprintf(w, "total_vectors:      %d   # count of indexed chunks\n", status.TotalVectors)
	if status.Embedder != "" {
		fmt.Fprintf(w, "embedder:           %s\n", status.Embedder)
	}
	fmt.Fprintf(w, "total_documents:    %d\n", status.TotalDocuments)
	states := make([]string, 0, len(status.DocumentsByState))
	for s := range status.DocumentsByState {
		states = append(states, string(s))
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(w, "  %-17s %d\n", strings.ToLower(s)+":", status.DocumentsByState[models.DocumentStatus(s)])
	}
	fmt.Fprintf(w, "disk_usage_bytes:   %d   # registry + index files on disk\n", status.DiskUsageBytes)
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
