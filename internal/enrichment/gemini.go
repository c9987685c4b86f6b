package enrichment

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiCompleter implements Completer using Google Gemini.
type GeminiCompleter struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiCompleter creates a Gemini client for modelName.
func NewGeminiCompleter(ctx context.Context, apiKey, modelName string, temperature float32) (*GeminiCompleter, error) {
	const op = "NewGeminiCompleter"

	if apiKey == "" {
		return nil, NewEnrichmentError(op, "gemini", ErrMissingAPIKey, "GEMINI_API_KEY is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, NewEnrichmentError(op, "gemini", err, "creating gemini client")
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)

	return &GeminiCompleter{client: client, model: model}, nil
}

func (g *GeminiCompleter) Name() string { return "gemini" }

// Complete sends the system and user prompts as a single text part.
func (g *GeminiCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "GeminiCompleter.Complete"

	resp, err := g.model.GenerateContent(ctx, genai.Text(systemPrompt+"\n\n"+userPrompt))
	if err != nil {
		return "", NewEnrichmentError(op, g.Name(), err, "generating content")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", NewEnrichmentError(op, g.Name(), ErrEmptyResponse, "no candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}

// Close closes the Gemini client.
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}
