package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/llm"
)

// Answer is a generated answer with the chunks it was grounded on.
type Answer struct {
	Text           string
	Sources        []RankedChunk
	QueryEmbedding []float32
}

// Answer retrieves the top k chunks for question, drops zero-similarity hits and asks the
// generator to answer from the remaining context.
func (s *Service) Answer(ctx context.Context, question string, k int) (*Answer, error) {
	ranked, queryVec, err := s.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}
	sources := Relevant(ranked)
	contexts := make([]string, len(sources))
	for i, src := range sources {
		contexts[i] = src.Content
	}
	text, err := s.generator.Generate(ctx, llm.BuildPrompt(question, contexts))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	s.logger.Debug("answer generated",
		zap.String("generator", s.generator.Name()),
		zap.Int("sources", len(sources)))
	return &Answer{Text: text, Sources: sources, QueryEmbedding: queryVec}, nil
}
