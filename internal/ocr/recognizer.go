// Package ocr turns scanned or photographed documents into text.
//
// Acquisition happens in two steps: Rasterize converts a PDF (first pages
// only) or an image into PNG pages, then a Recognizer reads each page. The
// Acquirer drives both and never lets a recognition outage abort the
// pipeline: if no page could be read it returns a placeholder text instead.
//
// Recognizers:
//   - VisionRecognizer: Google Cloud Vision DOCUMENT_TEXT_DETECTION
//   - DocumentAIRecognizer: Google Document AI OCR processor
//
// Credentials are taken from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to the
// application default credentials.
package ocr

import (
	"context"

	"google.golang.org/api/option"

	"docvat/pkg/models"
)

// Recognizer reads the text of a single rasterized page.
type Recognizer interface {
	// Recognize returns the page text and a confidence between 0 and 1.
	Recognize(ctx context.Context, page RawPage, languageHints []string) (models.PageText, error)

	// Close releases the underlying client.
	Close() error
}

// Credentials selects how Google clients authenticate.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) clientOptions() []option.ClientOption {
	switch {
	case c.JSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.JSON))}
	case c.File != "":
		return []option.ClientOption{option.WithCredentialsFile(c.File)}
	}
	return nil
}
