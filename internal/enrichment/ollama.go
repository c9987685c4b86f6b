package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaCompleter implements Completer against a local Ollama server.
type OllamaCompleter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaCompleter targets baseURL (default http://localhost:11434).
// Timeouts come from the caller's context.
func NewOllamaCompleter(baseURL, modelName string) *OllamaCompleter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.1"
	}

	return &OllamaCompleter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *OllamaCompleter) Name() string { return "ollama" }

// Complete posts a non-streaming chat request.
func (o *OllamaCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "OllamaCompleter.Complete"

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewEnrichmentError(op, o.Name(), err, "marshaling request")
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", NewEnrichmentError(op, o.Name(), err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", NewEnrichmentError(op, o.Name(), err, "calling ollama API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", NewEnrichmentError(op, o.Name(), fmt.Errorf("status %d", resp.StatusCode), strings.TrimSpace(string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", NewEnrichmentError(op, o.Name(), err, "decoding response")
	}
	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return "", NewEnrichmentError(op, o.Name(), ErrEmptyResponse, "")
	}

	return chatResp.Message.Content, nil
}
