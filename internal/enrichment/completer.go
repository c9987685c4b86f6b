// Package enrichment asks a language model to re-read a document and
// return a structured record that complements the heuristic one.
//
// Enrichment is advisory. Every failure surfaces as ErrEnrichmentUnavailable
// and the adapter never retries on its own; callers keep the heuristic
// record instead.
package enrichment

import (
	"context"
	"strings"
)

// Completer is a chat-completion style language model.
type Completer interface {
	// Complete sends one system and one user message and returns the raw answer.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name identifies the provider in logs and record sources.
	Name() string
}

// stripCodeFences removes a surrounding markdown code block, if any.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
