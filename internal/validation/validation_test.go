package validation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvat/pkg/models"
)

var now = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func heuristic() models.ExtractionRecord {
	return models.ExtractionRecord{
		DocumentType:   models.DocClientInvoice,
		TypeConfidence: 0.6,
		Entity:         models.EntityHypervisual,
		Client:         models.Client{Name: "ACME SA", Country: "CH"},
		Supplier:       models.Supplier{Name: "HYPERVISUAL SA"},
		IssueDate:      time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		DocumentNumber: "FA-001",
		Amounts:        models.Amounts{GrossTTC: 1081},
		VATRate:        8.1,
		Currency:       "CHF",
		VATStatus:      models.VATIncluded,
		Source:         "ocr",
	}
}

func TestMerge_HeuristicsOnly(t *testing.T) {
	basic := heuristic()

	merged := Merge(basic, nil)

	want := basic
	want.Confidence = HeuristicConfidence
	want.Source = "ocr"
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_EnrichedWins(t *testing.T) {
	basic := heuristic()
	enriched := &models.ExtractionRecord{
		DocumentType: models.DocSupplierInvoice,
		Client:       models.Client{Name: "PROMIDEA SRL"},
		Supplier:     models.Supplier{Name: "Swisscom AG", TaxID: "CHE-111.222.333"},
		Amounts:      models.Amounts{NetHT: models.Float(1000), VAT: models.Float(81), GrossTTC: 0},
		VATRate:      0,
		Currency:     "chf",
		Source:       "openai",
	}

	merged := Merge(basic, enriched)

	want := basic
	want.DocumentType = models.DocSupplierInvoice
	want.Client = models.Client{Name: "PROMIDEA SRL", Country: "CH"}
	want.Supplier = models.Supplier{Name: "Swisscom AG", TaxID: "CHE-111.222.333"}
	want.Amounts = models.Amounts{NetHT: models.Float(1000), VAT: models.Float(81), GrossTTC: 1081}
	want.Confidence = EnrichedConfidence
	want.Source = "openai+ocr"
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_SentinelsAndExemption(t *testing.T) {
	basic := models.ExtractionRecord{VATRate: 8.1, Amounts: models.Amounts{GrossTTC: 100}}
	enriched := &models.ExtractionRecord{
		VATStatus: models.VATNotApplicable,
		VATRate:   20,
		Amounts:   models.Amounts{VAT: models.Float(16.67)},
		Source:    "gemini",
	}

	merged := Merge(basic, enriched)

	assert.Equal(t, models.UnknownClient, merged.Client.Name)
	assert.Equal(t, models.UnknownSupplier, merged.Supplier.Name)
	assert.Equal(t, models.DefaultCurrency, merged.Currency)
	assert.Equal(t, models.VATNotApplicable, merged.VATStatus)
	require.NotNil(t, merged.Amounts.VAT)
	assert.Zero(t, *merged.Amounts.VAT)
	assert.Zero(t, merged.VATRate)
	assert.Equal(t, "gemini+ocr", merged.Source)
}

func TestMerge_DefaultStatus(t *testing.T) {
	merged := Merge(models.ExtractionRecord{}, nil)

	assert.Equal(t, models.VATIncluded, merged.VATStatus)
	assert.Equal(t, "CHF", merged.Currency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *models.ExtractionRecord)
		valid    bool
		errors   []string
		warnings []string
		score    float64
	}{
		{
			name:  "clean",
			valid: true,
			score: 1.0,
		},
		{
			name: "consistent amounts",
			mutate: func(r *models.ExtractionRecord) {
				r.Amounts = models.Amounts{NetHT: models.Float(1000), VAT: models.Float(81), GrossTTC: 1081.02}
			},
			valid: true,
			score: 1.0,
		},
		{
			name: "inconsistent amounts",
			mutate: func(r *models.ExtractionRecord) {
				r.Amounts = models.Amounts{NetHT: models.Float(1000), VAT: models.Float(81), GrossTTC: 1100}
			},
			errors: []string{"montant_ttc"},
			score:  0.6,
		},
		{
			name: "amounts not checked when hors tva",
			mutate: func(r *models.ExtractionRecord) {
				r.VATStatus = models.VATExcluded
				r.VATRate = 0
				r.Amounts = models.Amounts{NetHT: models.Float(1000), VAT: models.Float(0), GrossTTC: 1100}
			},
			valid: true,
			score: 1.0,
		},
		{
			name: "vat on hors tva",
			mutate: func(r *models.ExtractionRecord) {
				r.VATStatus = models.VATExcluded
				r.VATRate = 0
				r.Amounts.VAT = models.Float(5)
			},
			valid:    true,
			warnings: []string{"montant_tva"},
			score:    0.8,
		},
		{
			name:     "unusual swiss rate",
			mutate:   func(r *models.ExtractionRecord) { r.VATRate = 7.7 },
			valid:    true,
			warnings: []string{"taux_tva"},
			score:    0.8,
		},
		{
			name: "euro rate in range",
			mutate: func(r *models.ExtractionRecord) {
				r.Currency = "EUR"
				r.VATRate = 20
			},
			valid: true,
			score: 1.0,
		},
		{
			name: "euro rate out of range",
			mutate: func(r *models.ExtractionRecord) {
				r.Currency = "EUR"
				r.VATRate = 3
			},
			valid:    true,
			warnings: []string{"taux_tva"},
			score:    0.8,
		},
		{
			name:   "unsupported currency",
			mutate: func(r *models.ExtractionRecord) { r.Currency = "JPY" },
			errors: []string{"devise"},
			score:  0.6,
		},
		{
			name:     "future date",
			mutate:   func(r *models.ExtractionRecord) { r.IssueDate = now.AddDate(0, 0, 1) },
			valid:    true,
			warnings: []string{"date"},
			score:    0.8,
		},
		{
			name: "errors and warnings",
			mutate: func(r *models.ExtractionRecord) {
				r.Currency = "JPY"
				r.IssueDate = now.AddDate(1, 0, 0)
			},
			errors:   []string{"devise"},
			warnings: []string{"date"},
			score:    0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := heuristic()
			if tt.mutate != nil {
				tt.mutate(&r)
			}

			report := Validate(r, now)

			assert.Equal(t, tt.valid, report.Valid)
			assert.Equal(t, tt.score, report.Score)
			assert.Equal(t, fields(tt.errors), issueFields(report.Errors))
			assert.Equal(t, fields(tt.warnings), issueFields(report.Warnings))
		})
	}
}

func TestValidate_SuggestedFix(t *testing.T) {
	r := heuristic()
	r.Amounts = models.Amounts{NetHT: models.Float(1000.004), VAT: models.Float(81.003), GrossTTC: 1200}

	report := Validate(r, now)

	require.Len(t, report.Errors, 1)
	require.NotNil(t, report.Errors[0].SuggestedFix)
	assert.Equal(t, 1081.01, *report.Errors[0].SuggestedFix)
}

func TestValidateAndNormalize(t *testing.T) {
	r := heuristic()
	r.Amounts = models.Amounts{NetHT: models.Float(1000), VAT: models.Float(81), GrossTTC: 1180}

	normalized, report := New(func() time.Time { return now }).ValidateAndNormalize(r)

	assert.Equal(t, 1081.0, normalized.Amounts.GrossTTC)
	assert.Equal(t, 1180.0, r.Amounts.GrossTTC, "input untouched")
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"montant_ttc"}, issueFields(report.Errors))

	again := Validate(normalized, now)
	assert.True(t, again.Valid)
}

func fields(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

func issueFields(issues []models.Issue) []string {
	out := []string{}
	for _, issue := range issues {
		out = append(out, issue.Field)
	}
	return out
}
