// Package llm generates answers from retrieved context.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/pkg/utils"
)

const systemPrompt = "You are a helpful assistant that answers questions based on provided context."

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// MockGenerator answers without a model by echoing the head of the prompt.
type MockGenerator struct{}

// Generate returns a canned answer that quotes the first 50 characters of prompt.
func (MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "This is a mock response based on your query: " + utils.Truncate(prompt, 50), nil
}

// Name returns "mock".
func (MockGenerator) Name() string { return "mock" }

// OpenAIGenerator uses the OpenAI chat completions API.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator creates a generator using OPENAI_API_KEY from the environment.
func NewOpenAIGenerator(model string, maxTokens int) (*OpenAIGenerator, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return NewOpenAIGeneratorWithClient(openai.NewClient(key), model, maxTokens), nil
}

// NewOpenAIGeneratorWithClient creates a generator around an existing client.
func NewOpenAIGeneratorWithClient(client *openai.Client, model string, maxTokens int) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, model: model, maxTokens: maxTokens}
}

// Generate sends prompt as a single user message after the system prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Name returns "openai:" followed by the model name.
func (g *OpenAIGenerator) Name() string {
	return "openai:" + g.model
}

// New builds the generator selected by cfg.Provider. When the OpenAI generator cannot be
// configured, New logs a warning and returns the mock generator.
func New(cfg config.LLMConfig, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == config.LLMProviderOpenAI {
		g, err := NewOpenAIGenerator(cfg.Model, cfg.MaxTokens)
		if err == nil {
			return g
		}
		logger.Warn("llm unavailable, using mock responses", zap.Error(err))
	}
	return MockGenerator{}
}
