package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"docvat/internal/config"
	"docvat/internal/enrichment"
	"docvat/internal/logger"
	"docvat/internal/ocr"
	"docvat/internal/pipeline"
	"docvat/internal/sheets"
	"docvat/internal/store"
	"docvat/internal/vat"
)

// appOptions selects the components a command needs.
type appOptions struct {
	OCR        bool
	Enrichment bool
	Store      bool
	Sheets     bool
}

// app holds the wired components of one command run.
type app struct {
	cfg       *config.Config
	processor *pipeline.Processor
	engine    *vat.Engine
	sheets    *sheets.Service
	closers   []func() error
	log       zerolog.Logger
}

// newApp wires the pipeline and the VAT engine from cfg. Providers whose
// credentials are missing are disabled with a warning rather than failing
// the command.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: logger.WithComponent("app")}

	var st store.Store
	if opts.Store && cfg.StorePath != "" {
		bolt, err := store.OpenBolt(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open store %s: %w", cfg.StorePath, err)
		}
		a.closers = append(a.closers, bolt.Close)
		st = bolt
	}

	var recognizer ocr.Recognizer
	if opts.OCR {
		recognizer = a.newRecognizer(ctx)
	}
	acquirer := ocr.NewAcquirer(recognizer, ocr.AcquirerConfig{
		Languages:     cfg.OCRLanguages,
		PageTimeout:   cfg.OCRTimeout,
		ConfidenceMin: cfg.OCRConfidenceMin,
		MaxPages:      cfg.OCRMaxPages,
	})

	var enricher pipeline.RecordEnricher
	if opts.Enrichment {
		if completer := a.newCompleter(ctx); completer != nil {
			enricher = enrichment.NewEnricher(completer, enrichment.Config{
				Timeout:           cfg.EnrichmentTimeout,
				RequestsPerSecond: cfg.EnrichmentRPS,
			})
		}
	}

	a.processor = pipeline.New(acquirer, enricher, st, pipeline.Options{})

	var source vat.AccountingSource = vat.FallbackSource{}
	if opts.Sheets && cfg.GoogleSheetURL != "" {
		svc, err := sheets.NewService(ctx, cfg.GoogleSheetURL, sheets.Credentials{
			JSON: cfg.GoogleCredentialsJSON,
			File: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			a.log.Warn().
				Err(err).
				Str("path", "fallback_dataset").
				Msg("Google Sheets unavailable, VAT declarations use the fallback dataset")
		} else {
			a.sheets = svc
			source = sheets.NewAccountingReader(svc)
		}
	}

	a.engine = vat.NewEngine(vat.EngineConfig{
		Entity:      cfg.VATEntity,
		VATNumber:   cfg.VATNumber,
		SubmittedBy: cfg.VATSubmittedBy,
		Policy:      vat.SubmitPolicy(cfg.VATSubmitPolicy),
	}, st, source)

	a.log.Debug().
		Str("ocr_provider", cfg.OCRProvider).
		Bool("ocr_enabled", recognizer != nil).
		Str("enrichment_provider", cfg.EnrichmentProvider).
		Bool("enrichment_enabled", enricher != nil).
		Bool("store_enabled", st != nil).
		Bool("sheets_enabled", a.sheets != nil).
		Msg("Application wired")

	return a, nil
}

func (a *app) newRecognizer(ctx context.Context) ocr.Recognizer {
	creds := ocr.Credentials{JSON: a.cfg.GoogleCredentialsJSON, File: a.cfg.GoogleCredentialsFile}

	var (
		recognizer ocr.Recognizer
		err        error
	)
	switch a.cfg.OCRProvider {
	case config.ProviderNone:
		return nil
	case config.ProviderDocumentAI:
		var r *ocr.DocumentAIRecognizer
		r, err = ocr.NewDocumentAIRecognizer(ctx, ocr.DocumentAIConfig{
			ProjectID:        a.cfg.GoogleCloudProject,
			Location:         a.cfg.GoogleCloudLocation,
			ProcessorID:      a.cfg.DocumentAIProcessorID,
			ProcessorVersion: a.cfg.DocumentAIProcessorVersion,
		}, creds)
		if err == nil {
			recognizer = r
		}
	default:
		var r *ocr.VisionRecognizer
		r, err = ocr.NewVisionRecognizer(ctx, creds)
		if err == nil {
			recognizer = r
		}
	}

	if err != nil {
		a.log.Warn().
			Err(err).
			Str("provider", a.cfg.OCRProvider).
			Str("path", "ocr_placeholder").
			Msg("OCR provider unavailable, documents will carry placeholder text")
		return nil
	}
	a.closers = append(a.closers, recognizer.Close)
	return recognizer
}

func (a *app) newCompleter(ctx context.Context) enrichment.Completer {
	provider := a.cfg.EnrichmentProvider
	disabled := func(err error) enrichment.Completer {
		a.log.Warn().
			Err(err).
			Str("provider", provider).
			Str("path", "heuristics_only").
			Msg("Enrichment provider unavailable, using heuristics only")
		return nil
	}

	switch provider {
	case config.ProviderNone:
		return nil
	case config.ProviderGemini:
		if a.cfg.GeminiAPIKey == "" {
			return disabled(enrichment.ErrMissingAPIKey)
		}
		completer, err := enrichment.NewGeminiCompleter(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel, float32(a.cfg.OpenAITemperature))
		if err != nil {
			return disabled(err)
		}
		a.closers = append(a.closers, completer.Close)
		return completer
	case config.ProviderOllama:
		return enrichment.NewOllamaCompleter(a.cfg.OllamaURL, a.cfg.OllamaModel)
	default:
		completer, err := enrichment.NewOpenAICompleter(enrichment.OpenAIConfig{
			APIKey:      a.cfg.OpenAIAPIKey,
			Model:       a.cfg.OpenAIModel,
			MaxTokens:   a.cfg.OpenAIMaxTokens,
			Temperature: float32(a.cfg.OpenAITemperature),
			JSONMode:    a.cfg.OpenAIJSONMode,
		})
		if err != nil {
			return disabled(err)
		}
		return completer
	}
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}
