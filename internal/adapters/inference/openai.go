package inference

import (
	"context"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowforge/flowforge/internal/domain"
)

// Client talks to an OpenAI-compatible chat-completion endpoint on behalf
// of ai nodes. A custom base URL targets local or self-hosted providers.
type Client struct {
	api          *openai.Client
	defaultModel string
	logger       *slog.Logger
}

func New(config domain.InferenceConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:          openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
		logger:       logger.With("component", "inference"),
	}
}

// Complete sends a single-turn chat completion. The model argument comes
// from node configuration; "default" or empty falls back to the configured
// default model.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" || model == "default" {
		model = c.defaultModel
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Error("inference request failed", "model", model, "error", err.Error())
		return "", domain.Error{
			Type:    domain.ErrorTypeNode,
			Message: "inference request failed",
			Details: map[string]interface{}{"model": model, "error": err.Error()},
		}
	}
	if len(resp.Choices) == 0 {
		return "", domain.Error{
			Type:    domain.ErrorTypeNode,
			Message: "inference returned no choices",
			Details: map[string]interface{}{"model": model},
		}
	}

	c.logger.Debug("inference completed",
		"model", model,
		"finish_reason", string(resp.Choices[0].FinishReason))
	return resp.Choices[0].Message.Content, nil
}
