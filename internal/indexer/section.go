package indexer

import (
	"fmt"
	"strings"
)

var sectionKeywords = []struct {
	label    string
	keywords []string
}{
	{"Introduction", []string{"introduction", "abstract", "summary"}},
	{"Methodology", []string{"method", "approach", "methodology"}},
	{"Results", []string{"result", "finding", "outcome"}},
	{"Conclusion", []string{"conclusion", "discussion", "future"}},
	{"References", []string{"reference", "bibliography", "citation"}},
}

// DetectSection labels a chunk by keyword, falling back to its position in the document.
func DetectSection(content string, index, total int) string {
	lower := strings.ToLower(content)
	for _, s := range sectionKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.label
			}
		}
	}
	switch {
	case index == 0:
		return "Opening"
	case index == total-1:
		return "Closing"
	default:
		return fmt.Sprintf("Section_%d", index+1)
	}
}
