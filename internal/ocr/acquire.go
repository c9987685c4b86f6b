package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docvat/internal/logger"
	"docvat/pkg/models"
)

// PlaceholderText replaces the recognized text when no page could be read.
const PlaceholderText = "[texte OCR indisponible]"

// AcquirerConfig controls page limits, timeouts and the confidence floor.
type AcquirerConfig struct {
	Languages     []string
	PageTimeout   time.Duration
	ConfidenceMin float64
	MaxPages      int
}

// Acquirer rasterizes documents and recognizes their pages in order.
type Acquirer struct {
	recognizer Recognizer
	config     AcquirerConfig
	log        zerolog.Logger
}

// NewAcquirer returns an Acquirer. A nil recognizer is allowed and always
// yields the placeholder text.
func NewAcquirer(recognizer Recognizer, config AcquirerConfig) *Acquirer {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.PageTimeout <= 0 {
		config.PageTimeout = 60 * time.Second
	}
	if len(config.Languages) == 0 {
		config.Languages = []string{"fr", "en"}
	}
	return &Acquirer{
		recognizer: recognizer,
		config:     config,
		log:        logger.WithComponent("ocr"),
	}
}

// Acquire reads a document into text. Only an unreadable input is an error;
// recognition outages produce a placeholder result.
func (a *Acquirer) Acquire(ctx context.Context, data []byte, contentType string) (*models.RecognizedText, error) {
	const op = "Acquire"

	pages, err := Rasterize(data, contentType, a.config.MaxPages)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	return a.RecognizePages(ctx, pages)
}

// RecognizePages recognizes pages sequentially and concatenates their text.
// The confidence is the mean over the pages that were read.
func (a *Acquirer) RecognizePages(ctx context.Context, pages []RawPage) (*models.RecognizedText, error) {
	const op = "RecognizePages"
	startTime := time.Now()

	if a.recognizer == nil {
		a.log.Warn().Int("pages", len(pages)).Msg("No OCR provider configured, using placeholder text")
		return placeholder(len(pages)), nil
	}

	result := &models.RecognizedText{PageCount: len(pages)}
	var texts []string
	var confidenceSum float64

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, WrapOCRError(op, err, "acquisition canceled")
		}

		text, err := a.recognizePage(ctx, page)
		if err != nil {
			a.log.Warn().
				Err(err).
				Int("page", page.Index+1).
				Msg("Page recognition failed, skipping page")
			continue
		}

		result.Pages = append(result.Pages, text)
		texts = append(texts, text.Text)
		confidenceSum += text.Confidence
	}

	if len(result.Pages) == 0 {
		a.log.Warn().
			Int("pages", len(pages)).
			Msg("No page could be recognized, using placeholder text")
		return placeholder(len(pages)), nil
	}

	result.Text = strings.Join(texts, "\n")
	result.Confidence = confidenceSum / float64(len(result.Pages))

	if result.Confidence < a.config.ConfidenceMin {
		result.LowConfidence = true
		a.log.Warn().
			Err(ErrRecognitionLowConfidence).
			Float64("confidence", result.Confidence).
			Float64("threshold", a.config.ConfidenceMin).
			Msg("Low OCR confidence, continuing with heuristics")
	}

	a.log.Info().
		Int("pages", result.PageCount).
		Float64("confidence", result.Confidence).
		Dur("duration", time.Since(startTime)).
		Msg("Text acquired")

	return result, nil
}

func (a *Acquirer) recognizePage(ctx context.Context, page RawPage) (models.PageText, error) {
	pageCtx, cancel := context.WithTimeout(ctx, a.config.PageTimeout)
	defer cancel()

	text, err := a.recognizer.Recognize(pageCtx, page, a.config.Languages)
	if err != nil {
		return models.PageText{}, err
	}
	text.Index = page.Index
	return text, nil
}

func placeholder(pageCount int) *models.RecognizedText {
	return &models.RecognizedText{
		Text:        PlaceholderText,
		Confidence:  0,
		PageCount:   pageCount,
		Placeholder: true,
	}
}
