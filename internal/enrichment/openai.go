package enrichment

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// JSONMode requests a JSON object response; older models reject it.
	JSONMode bool
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// OpenAICompleter implements Completer with the chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAICompleter creates a client for the configured model.
func NewOpenAICompleter(config OpenAIConfig) (*OpenAICompleter, error) {
	const op = "NewOpenAICompleter"

	if config.APIKey == "" {
		return nil, NewEnrichmentError(op, "openai", ErrMissingAPIKey, "OPENAI_API_KEY is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

func (c *OpenAICompleter) Name() string { return "openai" }

// Complete issues one chat completion request.
func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "OpenAICompleter.Complete"

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	}
	if c.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", NewEnrichmentError(op, c.Name(), err, "chat completion request failed")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", NewEnrichmentError(op, c.Name(), ErrEmptyResponse, "")
	}

	return resp.Choices[0].Message.Content, nil
}
