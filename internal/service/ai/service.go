package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"aksara/internal/config"
	"aksara/internal/logging"
	"aksara/internal/models"
)

// FallbackReply replaces an empty model answer.
const FallbackReply = "I apologize, but I encountered an issue generating a response. Please try again."

// Options tune a single reply.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Replier produces the assistant answer to input given the prior conversation.
type Replier interface {
	Reply(ctx context.Context, history []*models.Message, input string, opts Options) (string, error)
	Model() string
}

// NewReplier builds the replier selected by cfg.Chat.Provider.
func NewReplier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Replier, error) {
	provider := strings.ToLower(cfg.Chat.Provider)
	provCfg := cfg.Providers[provider]
	modelName := cfg.Chat.Model

	switch provider {
	case "mock", "dummy":
		return NewMockReplier(modelName), nil
	case "ollama":
		r, err := newOllamaReplier(provCfg.BaseURL, modelName, cfg.Chat.SystemPrompt)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "openai", "gemini", "claude":
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}

	apiKey := provCfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(strings.ToUpper(provider) + "_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", provider)
	}
	chatModel, err := newChatModel(ctx, provider, modelName, apiKey, provCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	r := &einoReplier{
		chatModel:    chatModel,
		model:        modelName,
		systemPrompt: cfg.Chat.SystemPrompt,
		logger:       logging.OrNop(logger),
	}
	if cfg.Chat.WebSearch {
		if tools := agentTools(ctx, r.logger); len(tools) > 0 {
			r.agent, err = react.NewAgent(ctx, &react.AgentConfig{
				ToolCallingModel: chatModel,
				ToolsConfig: compose.ToolsNodeConfig{
					Tools: tools,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("init react agent: %w", err)
			}
		}
	}
	return r, nil
}

func newChatModel(ctx context.Context, provider, modelName, apiKey, baseURL string) (model.ToolCallingChatModel, error) {
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: config.DefaultMaxTokens,
		})
	}
	return nil, fmt.Errorf("invalid provider: %s", provider)
}

type einoReplier struct {
	chatModel    model.ToolCallingChatModel
	agent        *react.Agent
	model        string
	systemPrompt string
	logger       *zap.Logger
}

func (r *einoReplier) Model() string {
	return r.model
}

// Reply sends the converted history plus input to the model, through the ReAct agent when tools are enabled.
func (r *einoReplier) Reply(ctx context.Context, history []*models.Message, input string, opts Options) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errors.New("input cannot be empty")
	}
	messages := convertMessages(r.systemPrompt, history, input)
	modelOpts := []model.Option{model.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}

	var (
		out *schema.Message
		err error
	)
	if r.agent != nil {
		out, err = r.agent.Generate(ctx, messages, agent.WithComposeOptions(compose.WithChatModelOption(modelOpts...)))
	} else {
		out, err = r.chatModel.Generate(ctx, messages, modelOpts...)
	}
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if out == nil {
		return "", nil
	}
	r.logger.Debug("reply generated",
		zap.String("model", r.model),
		zap.Int("history", len(history)),
		zap.Bool("agent", r.agent != nil))
	return strings.TrimSpace(out.Content), nil
}

func convertMessages(systemPrompt string, history []*models.Message, input string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	for _, msg := range history {
		if msg == nil {
			continue
		}
		switch msg.Sender {
		case models.SenderAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Text, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Text))
		}
	}
	return append(messages, schema.UserMessage(input))
}
