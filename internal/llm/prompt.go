package llm

import (
	"fmt"
	"strings"
)

// BuildPrompt formats numbered context blocks followed by the question.
func BuildPrompt(question string, contexts []string) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = fmt.Sprintf("Context %d: %s", i+1, c)
	}
	var b strings.Builder
	b.WriteString("Please answer the following question based on the provided context. ")
	b.WriteString("If the context doesn't contain relevant information, please say so.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
