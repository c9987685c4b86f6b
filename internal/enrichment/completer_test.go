package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaCompleter_Complete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "{\"type\": \"devis\"}"}, "done": true}`))
	}))
	defer srv.Close()

	completer := NewOllamaCompleter(srv.URL+"/", "mistral")
	answer, err := completer.Complete(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"type": "devis"}`, answer)
	assert.Equal(t, "mistral", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestOllamaCompleter_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaCompleter(srv.URL, "missing").Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"devise\": \"EUR\"}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	completer, err := NewOpenAICompleter(OpenAIConfig{
		APIKey:      "test-key",
		Temperature: 0.1,
		JSONMode:    true,
		BaseURL:     srv.URL + "/v1",
	})
	require.NoError(t, err)

	answer, err := completer.Complete(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)

	assert.Equal(t, `{"devise": "EUR"}`, answer)
	assert.Equal(t, "gpt-4", got["model"])
	assert.EqualValues(t, 2000, got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAICompleter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "requests"}}`))
	}))
	defer srv.Close()

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
}

func TestNewCompleters_RequireAPIKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewGeminiCompleter(context.Background(), "", "", 0.1)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`  {"a":1} `))
}
