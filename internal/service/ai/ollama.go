package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"aksara/internal/models"
)

// ollamaReplier talks to a local Ollama server through langchaingo.
type ollamaReplier struct {
	llm          llms.Model
	model        string
	systemPrompt string
}

func newOllamaReplier(serverURL, modelName, systemPrompt string) (*ollamaReplier, error) {
	opts := []ollama.Option{ollama.WithModel(modelName)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return &ollamaReplier{llm: llm, model: modelName, systemPrompt: systemPrompt}, nil
}

func (r *ollamaReplier) Model() string {
	return r.model
}

func (r *ollamaReplier) Reply(ctx context.Context, history []*models.Message, input string, opts Options) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errors.New("input cannot be empty")
	}
	callOpts := []llms.CallOption{llms.WithTemperature(float64(opts.Temperature))}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	resp, err := r.llm.GenerateContent(ctx, toMessageContent(r.systemPrompt, history, input), callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func toMessageContent(systemPrompt string, history []*models.Message, input string) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history)+2)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, msg := range history {
		if msg == nil {
			continue
		}
		role := llms.ChatMessageTypeHuman
		if msg.Sender == models.SenderAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Text))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, input))
}
