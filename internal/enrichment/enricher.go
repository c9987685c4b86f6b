package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"docvat/internal/logger"
	"docvat/pkg/models"
)

// SystemPrompt frames the model as a financial data extractor.
const SystemPrompt = "Tu es un expert en extraction de données financières. Retourne uniquement du JSON valide."

const (
	DefaultMaxExcerpt = 3000
	DefaultTimeout    = 60 * time.Second
)

// Config controls the enrichment call.
type Config struct {
	// Timeout bounds the single completion call.
	Timeout time.Duration
	// MaxExcerpt is the number of runes of document text sent to the model.
	MaxExcerpt int
	// RequestsPerSecond throttles calls shared by all callers of the
	// Enricher; zero disables throttling.
	RequestsPerSecond float64
}

// Enricher turns a document text and its heuristic record into a record
// proposed by a language model.
type Enricher struct {
	completer Completer
	config    Config
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewEnricher wraps completer.
func NewEnricher(completer Completer, config Config) *Enricher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxExcerpt <= 0 {
		config.MaxExcerpt = DefaultMaxExcerpt
	}

	e := &Enricher{
		completer: completer,
		config:    config,
		log:       logger.WithComponent("enrichment").With().Str("provider", completer.Name()).Logger(),
	}
	if config.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return e
}

// Name returns the provider name of the underlying completer.
func (e *Enricher) Name() string {
	return e.completer.Name()
}

// Enrich performs exactly one completion call. Every failure, including a
// timeout, matches ErrEnrichmentUnavailable.
func (e *Enricher) Enrich(ctx context.Context, text string, basic models.ExtractionRecord) (*models.ExtractionRecord, error) {
	const op = "Enrich"

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, NewEnrichmentError(op, e.Name(), err, "waiting for rate limiter")
		}
	}

	prompt, err := BuildPrompt(text, basic, e.config.MaxExcerpt)
	if err != nil {
		return nil, NewEnrichmentError(op, e.Name(), err, "building prompt")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := e.completer.Complete(callCtx, SystemPrompt, prompt)
	if err != nil {
		e.log.Warn().
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("Enrichment call failed")
		return nil, WrapEnrichmentError(op, e.Name(), err, "completion call")
	}

	record, err := ParseResponse(answer, e.Name())
	if err != nil {
		e.log.Warn().
			Err(err).
			Int("response_length", len(answer)).
			Msg("Enrichment response could not be parsed")
		return nil, WrapEnrichmentError(op, e.Name(), err, "parsing response")
	}

	e.log.Debug().
		Dur("elapsed", time.Since(start)).
		Str("document_type", string(record.DocumentType)).
		Float64("confidence", record.Confidence).
		Msg("Document enriched")

	return record, nil
}

// ParseResponse extracts the first JSON object of a model answer.
func ParseResponse(answer, source string) (*models.ExtractionRecord, error) {
	const op = "ParseResponse"

	text := stripCodeFences(answer)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, NewEnrichmentError(op, source, ErrNoJSON, "")
	}

	var p payload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return nil, NewEnrichmentError(op, source, err, "invalid JSON")
	}

	return p.toRecord(source), nil
}

// BuildPrompt renders the user prompt for text and the heuristic record.
func BuildPrompt(text string, basic models.ExtractionRecord, maxExcerpt int) (string, error) {
	basicJSON, err := json.MarshalIndent(payloadFromRecord(basic), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling basic data: %w", err)
	}

	return fmt.Sprintf(promptTemplate, truncateRunes(text, maxExcerpt), basicJSON), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

const promptTemplate = `Extrait les données financières de ce document OCR multi-devises et retourne un JSON structuré.

TEXTE OCR:
%s

DONNÉES BASIQUES DÉTECTÉES:
%s

INSTRUCTIONS CRITIQUES - CLIENT OBLIGATOIRE:
1. IDENTIFIE LE CLIENT DESTINATAIRE (entreprise facturée par HYPERVISUAL)
   - Le client est APRÈS l'émetteur HYPERVISUAL et AVANT le numéro de document
2. DETECTE la devise PRINCIPALE utilisée dans le document (CHF, EUR, USD, GBP, CAD)
3. IDENTIFIE le statut TVA:
   - "hors_tva" : Si mention explicite HT, Hors TVA, excluding VAT, net
   - "ttc" : Si mention TTC, including VAT, avec TVA, gross
   - "non_applicable" : Si mention N/A, exempt, exonéré
4. NE CALCULE PAS la TVA - détecte seulement les montants présents
5. Si devise EUR et pas de mention TVA = suppose "hors_tva"

STRUCTURE DOCUMENT TYPE:
- Lignes 1-3: HYPERVISUAL (émetteur)
- Lignes 4-7: CLIENT DESTINATAIRE + adresse
- Lignes 8+: Numéro document, date, détails

RETOURNE UN JSON avec cette structure exacte:
{
  "type": "facture_fournisseur|facture_client|ticket_cb|devis|note_frais",
  "entite": "hypervisual|dainamics|enki_reality|takeout|lexaia",
  "client": "NOM COMPLET DU CLIENT DESTINATAIRE",
  "clientAddress": "adresse complète du client",
  "clientCountry": "pays du client",
  "numero": "string",
  "date": "YYYY-MM-DD",
  "date_echeance": "YYYY-MM-DD ou null",
  "fournisseur": {
    "nom": "string",
    "adresse": "string",
    "npa_ville": "string",
    "numero_tva": "string ou null"
  },
  "montant_ht": "number ou null",
  "montant_tva": "number ou null",
  "montant_ttc": "number",
  "taux_tva": "number (0 si hors_tva)",
  "devise": "CHF|EUR|USD|GBP|CAD",
  "vat_status": "hors_tva|ttc|non_applicable",
  "ligne_articles": [
    {
      "description": "string",
      "quantite": "number",
      "prix_unitaire": "number",
      "total": "number"
    }
  ],
  "confidence": "number entre 0.8 et 1.0"
}

RÈGLES MULTI-DEVISES:
- CHF: TVA 8.1%% (standard), 2.6%% (réduit), 3.8%% (hébergement)
- EUR: TVA varie selon pays (France 20%%, Belgique 21%%, etc.)
- USD/GBP/CAD: Adapter selon contexte
- Montants DOIVENT être dans la devise détectée
- Si "hors_tva": montant_tva = 0 et taux_tva = 0
- Dates au format ISO (YYYY-MM-DD)
`
