package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel      = "meta-llama/llama-3.1-70b-instruct"
)

type LanguageModel interface {
	ChatCompletion(
		ctx context.Context,
		req *ChatCompletionRequest,
	) (string, error)
}

type ChatCompletionRequest struct {
	SystemPrompt string
	UserMessages []string
	MaxTokens    int
	Temperature  float32
}

func (r *ChatCompletionRequest) WithUserMessage(
	message string,
) *ChatCompletionRequest {
	r.UserMessages = append(r.UserMessages, message)
	return r
}

// OpenRouterModel talks to OpenRouter's OpenAI-compatible chat completions
// endpoint.
type OpenRouterModel struct {
	client *openai.Client
	model  string
}

func NewOpenRouterModel(apiKey, model string) *OpenRouterModel {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = OpenRouterBaseURL

	if model == "" {
		model = DefaultModel
	}

	return &OpenRouterModel{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenRouterModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
	}

	for _, userMessage := range req.UserMessages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})
	}

	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenRouter API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenRouter returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// IsAuthError reports whether the gateway rejected the request for billing
// or credential reasons, which the assistant downgrades to demo mode.
func IsAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 402
	}
	return false
}
