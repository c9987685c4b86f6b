// Package pipeline runs a document through acquisition, heuristic
// extraction, optional enrichment and validation.
//
// Every stage after acquisition has a fallback, so a readable document
// always yields a record. The Outcome of a Result says which fallbacks were
// taken.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docvat/internal/extraction"
	"docvat/internal/logger"
	"docvat/internal/store"
	"docvat/internal/validation"
	"docvat/pkg/models"
)

// EnrichmentPath records how the enrichment stage ended.
type EnrichmentPath string

const (
	PathEnriched           EnrichmentPath = "enriched"
	PathHeuristicsOnly     EnrichmentPath = "heuristics_only"
	PathEnrichmentDisabled EnrichmentPath = "enrichment_disabled"
)

// TextAcquirer turns document bytes into recognized text.
type TextAcquirer interface {
	Acquire(ctx context.Context, data []byte, contentType string) (*models.RecognizedText, error)
}

// RecordEnricher refines a heuristic record with a language model.
type RecordEnricher interface {
	Enrich(ctx context.Context, text string, basic models.ExtractionRecord) (*models.ExtractionRecord, error)
	Name() string
}

// Document is one input file.
type Document struct {
	ID          string
	Name        string
	Data        []byte
	ContentType string

	// SkipEnrichment bypasses the enrichment stage for this document.
	SkipEnrichment bool
}

// Outcome lists the fallbacks taken while processing a document.
type Outcome struct {
	EnrichmentPath   EnrichmentPath `json:"enrichment_path"`
	EnrichmentError  string         `json:"enrichment_error,omitempty"`
	OCRPlaceholder   bool           `json:"ocr_placeholder"`
	LowConfidence    bool           `json:"low_confidence"`
	Persisted        bool           `json:"persisted"`
	StoreID          string         `json:"store_id,omitempty"`
	PersistenceError string         `json:"persistence_error,omitempty"`
}

// Result is the processed document.
type Result struct {
	DocumentID  string                  `json:"document_id"`
	Name        string                  `json:"name,omitempty"`
	Record      models.ExtractionRecord `json:"record"`
	Report      models.ValidationReport `json:"report"`
	Text        *models.RecognizedText  `json:"text"`
	Outcome     Outcome                 `json:"outcome"`
	ProcessedAt time.Time               `json:"processed_at"`
	Duration    time.Duration           `json:"duration"`
}

// Options configures a Processor.
type Options struct {
	// Clock drives the extractor's auto-numbering and the future-date rule.
	Clock func() time.Time
}

// Processor wires the stages together. The acquirer is required; a nil
// enricher disables enrichment and a nil store disables persistence.
type Processor struct {
	acquirer  TextAcquirer
	extractor *extraction.Extractor
	enricher  RecordEnricher
	validator *validation.Validator
	store     store.Store
	clock     func() time.Time
	log       zerolog.Logger
}

// New returns a Processor.
func New(acquirer TextAcquirer, enricher RecordEnricher, st store.Store, opts Options) *Processor {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		acquirer:  acquirer,
		extractor: extraction.NewWithClock(clock),
		enricher:  enricher,
		validator: validation.New(clock),
		store:     st,
		clock:     clock,
		log:       logger.WithComponent("pipeline"),
	}
}

// EnrichmentEnabled reports whether an enricher is wired.
func (p *Processor) EnrichmentEnabled() bool {
	return p.enricher != nil
}

// Process runs the whole pipeline on doc. Only an unreadable document is an
// error; it matches ocr.ErrAcquisitionFailure. Documents declared as
// text/plain skip acquisition.
func (p *Processor) Process(ctx context.Context, doc Document) (*Result, error) {
	const op = "Process"
	if strings.HasPrefix(strings.ToLower(doc.ContentType), "text/plain") {
		return p.ProcessText(ctx, doc, string(doc.Data))
	}
	doc = withID(doc)
	log := logger.WithDocument("pipeline", doc.ID)

	text, err := p.acquirer.Acquire(ctx, doc.Data, doc.ContentType)
	if err != nil {
		log.Error().
			Err(err).
			Str("op", op).
			Str("name", doc.Name).
			Msg("Document could not be read")
		return nil, err
	}

	return p.run(ctx, doc, text), nil
}

// ProcessText runs the pipeline on already-recognized text.
func (p *Processor) ProcessText(ctx context.Context, doc Document, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc = withID(doc)
	recognized := &models.RecognizedText{
		Text:       text,
		Confidence: 1,
		PageCount:  1,
		Pages:      []models.PageText{{Index: 0, Text: text, Confidence: 1}},
	}
	return p.run(ctx, doc, recognized), nil
}

func withID(doc Document) Document {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	return doc
}

func (p *Processor) run(ctx context.Context, doc Document, text *models.RecognizedText) *Result {
	start := time.Now()
	log := logger.WithDocument("pipeline", doc.ID)

	result := &Result{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Text:       text,
		Outcome: Outcome{
			OCRPlaceholder: text.Placeholder,
			LowConfidence:  text.LowConfidence,
		},
	}
	if text.Placeholder {
		log.Warn().
			Str("path", "ocr_placeholder").
			Msg("Text unavailable, extracting from placeholder")
	}

	basic := p.extractor.ExtractBasic(text.Text)
	enriched := p.enrich(ctx, doc, text.Text, basic, &result.Outcome, log)

	merged := validation.Merge(basic, enriched)
	result.Record, result.Report = p.validator.ValidateAndNormalize(merged)

	p.persist(ctx, result, log)

	result.ProcessedAt = p.clock()
	result.Duration = time.Since(start)

	log.Info().
		Str("name", doc.Name).
		Str("document_type", string(result.Record.DocumentType)).
		Str("source", result.Record.Source).
		Str("enrichment_path", string(result.Outcome.EnrichmentPath)).
		Bool("valid", result.Report.Valid).
		Float64("score", result.Report.Score).
		Float64("gross_ttc", result.Record.Amounts.GrossTTC).
		Dur("duration", result.Duration).
		Msg("Document processed")

	return result
}

func (p *Processor) enrich(ctx context.Context, doc Document, text string, basic models.ExtractionRecord, outcome *Outcome, log zerolog.Logger) *models.ExtractionRecord {
	if p.enricher == nil || doc.SkipEnrichment {
		outcome.EnrichmentPath = PathEnrichmentDisabled
		return nil
	}

	enriched, err := p.enricher.Enrich(ctx, text, basic)
	if err != nil {
		outcome.EnrichmentPath = PathHeuristicsOnly
		outcome.EnrichmentError = err.Error()
		log.Warn().
			Err(err).
			Str("provider", p.enricher.Name()).
			Bool("timeout", errors.Is(err, context.DeadlineExceeded)).
			Str("path", string(PathHeuristicsOnly)).
			Msg("Enrichment unavailable, keeping heuristic record")
		return nil
	}

	outcome.EnrichmentPath = PathEnriched
	return enriched
}

func (p *Processor) persist(ctx context.Context, result *Result, log zerolog.Logger) {
	if p.store == nil {
		return
	}

	props, err := recordProperties(result, p.clock())
	if err == nil {
		result.Outcome.StoreID, err = p.store.SavePage(ctx, store.DatabaseExtractionRecords, props)
	}
	if err != nil {
		result.Outcome.PersistenceError = err.Error()
		log.Warn().
			Err(err).
			Str("path", "not_persisted").
			Msg("Record could not be persisted")
		return
	}
	result.Outcome.Persisted = true
}
