// Package extraction reads structured fields out of recognized document
// text with regular expressions and positional heuristics.
//
// Extraction never fails: each field has a default, and weak evidence is
// reported through TypeConfidence rather than errors. Fields are computed by
// independent functions run in a fixed order; the document-type contest runs
// after the entity and client fields because its indicators look at them.
package extraction

import (
	"time"

	"github.com/rs/zerolog"

	"docvat/internal/logger"
	"docvat/pkg/models"
)

// SourceHeuristics tags records produced by this package alone.
const SourceHeuristics = "ocr"

// fieldExtractor fills part of a record from the text.
type fieldExtractor struct {
	name  string
	apply func(e *Extractor, text string, r *models.ExtractionRecord)
}

var fieldExtractors = []fieldExtractor{
	{"currency_vat", (*Extractor).currencyAndVAT},
	{"client", (*Extractor).client},
	{"entity", (*Extractor).entity},
	{"document_type", (*Extractor).documentType},
	{"date", (*Extractor).date},
	{"number", (*Extractor).number},
	{"supplier", (*Extractor).supplier},
	{"amounts", (*Extractor).amounts},
}

// Extractor is safe for concurrent use.
type Extractor struct {
	now func() time.Time
	log zerolog.Logger
}

// New returns an Extractor using the wall clock for date defaults.
func New() *Extractor {
	return NewWithClock(time.Now)
}

// NewWithClock returns an Extractor whose today and AUTO-number defaults
// come from now.
func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{
		now: now,
		log: logger.WithComponent("extraction"),
	}
}

// ExtractBasic runs every field extractor over text.
func (e *Extractor) ExtractBasic(text string) models.ExtractionRecord {
	record := models.ExtractionRecord{Source: SourceHeuristics}

	for _, f := range fieldExtractors {
		f.apply(e, text, &record)
	}
	record.EnforceExemption()

	e.log.Debug().
		Str("type", string(record.DocumentType)).
		Float64("type_confidence", record.TypeConfidence).
		Str("entity", string(record.Entity)).
		Str("currency", record.Currency).
		Str("vat_status", string(record.VATStatus)).
		Float64("gross", record.Amounts.GrossTTC).
		Msg("Heuristic extraction complete")

	return record
}

func (e *Extractor) currencyAndVAT(text string, r *models.ExtractionRecord) {
	cv := DetectCurrencyAndVAT(text)
	r.Currency = cv.Currency
	r.VATStatus = cv.Status
	r.VATRate = cv.Rate
}

func (e *Extractor) client(text string, r *models.ExtractionRecord) {
	r.Client = ExtractClient(text)
}

func (e *Extractor) entity(text string, r *models.ExtractionRecord) {
	r.Entity = DetectEntity(text)
}

func (e *Extractor) documentType(text string, r *models.ExtractionRecord) {
	c := ClassifyDocument(text, r.Entity, r.Client.Name)
	r.DocumentType = c.Best.Type
	r.TypeConfidence = c.Best.Confidence
	r.TypeAlternatives = c.Alternatives
}

func (e *Extractor) date(text string, r *models.ExtractionRecord) {
	if d, ok := ExtractDate(text); ok {
		r.IssueDate = d
		return
	}
	now := e.now()
	r.IssueDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Extractor) number(text string, r *models.ExtractionRecord) {
	if n := ExtractNumber(text); n != "" {
		r.DocumentNumber = n
		return
	}
	r.DocumentNumber = AutoNumber(e.now())
}

func (e *Extractor) supplier(text string, r *models.ExtractionRecord) {
	r.Supplier = models.Supplier{Name: ExtractSupplier(text)}
}

// amounts reads the labelled HT and TVA amounts; the gross amount falls back
// to the last number in the text.
func (e *Extractor) amounts(text string, r *models.ExtractionRecord) {
	if v, ok := ExtractAmount(text, AmountNet); ok {
		r.Amounts.NetHT = models.Float(v)
	}
	if v, ok := ExtractAmount(text, AmountVAT); ok {
		r.Amounts.VAT = models.Float(v)
	}
	if v, ok := ExtractAmount(text, AmountGross); ok {
		r.Amounts.GrossTTC = v
	} else if v, ok := LastAmount(text); ok {
		r.Amounts.GrossTTC = v
	}
}
