package ocr

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docvat/internal/logger"
	"docvat/pkg/models"
)

// DocumentAIConfig identifies the OCR processor to call.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

// DocumentAIRecognizer implements Recognizer using a Google Document AI OCR processor.
type DocumentAIRecognizer struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIRecognizer creates a processor client on the regional endpoint.
func NewDocumentAIRecognizer(ctx context.Context, config DocumentAIConfig, creds Credentials) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if config.ProjectID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	credOptions := creds.clientOptions()
	clientOptions = append(clientOptions, credOptions...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(credOptions) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &DocumentAIRecognizer{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}, nil
}

// Recognize sends one page to the OCR processor.
func (p *DocumentAIRecognizer) Recognize(ctx context.Context, page RawPage, _ []string) (models.PageText, error) {
	const op = "DocumentAIRecognizer.Recognize"

	req := &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  page.PNG,
				MimeType: "image/png",
			},
		},
	}

	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		return models.PageText{}, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return models.PageText{}, WrapOCRError(op, ErrRecognitionFailed, "no document in response")
	}

	result := pageFromDocument(page.Index, resp.Document)
	p.log.Debug().
		Int("page", page.Index+1).
		Float64("confidence", result.Confidence).
		Int("chars", len(result.Text)).
		Msg("Document AI page processed")

	return result, nil
}

// pageFromDocument averages the layout confidence of every returned page.
func pageFromDocument(index int, doc *documentaipb.Document) models.PageText {
	result := models.PageText{Index: index, Text: strings.TrimSpace(doc.Text)}

	var sum float32
	var count int
	for _, pg := range doc.Pages {
		if pg.Layout != nil && pg.Layout.Confidence > 0 {
			sum += pg.Layout.Confidence
			count++
		}
	}
	if count > 0 {
		result.Confidence = float64(sum / float32(count))
	}
	return result
}

func (p *DocumentAIRecognizer) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError maps Document AI status strings onto package errors.
func (p *DocumentAIRecognizer) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED"), strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return WrapOCRError(op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, context.Canceled, "processing canceled")
	default:
		return WrapOCRError(op, ErrRecognitionFailed, errStr)
	}
}

// Close closes the underlying Document AI client.
func (p *DocumentAIRecognizer) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
