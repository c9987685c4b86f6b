package enrichment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvat/pkg/models"
)

type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	calls   int
	prompts []string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

const invoiceAnswer = "```json\n" + `{
  "type": "facture_client",
  "entite": "hypervisual",
  "client": "PUBLIGRAMA ADVERTISING S.L.",
  "clientAddress": "Calle Mayor 1, Madrid",
  "clientCountry": "Espagne",
  "numero": "FA-2025-001",
  "date": "2025-03-14",
  "date_echeance": null,
  "fournisseur": {"nom": "HYPERVISUAL SA", "adresse": "Route 1", "npa_ville": "1700 Fribourg", "numero_tva": null},
  "montant_ht": 1000,
  "montant_tva": "81.00",
  "montant_ttc": "1'081.00",
  "taux_tva": 8.1,
  "devise": "chf",
  "vat_status": "ttc",
  "ligne_articles": [{"description": "Design", "quantite": 2, "prix_unitaire": "500", "total": 1000}],
  "confidence": 0.92
}` + "\n```"

func basicRecord() models.ExtractionRecord {
	return models.ExtractionRecord{
		DocumentType:   models.DocClientInvoice,
		Entity:         models.EntityHypervisual,
		Client:         models.Client{Name: models.UnknownClient},
		Supplier:       models.Supplier{Name: models.UnknownSupplier},
		IssueDate:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		DocumentNumber: "AUTO-1",
		Amounts:        models.Amounts{GrossTTC: 1081},
		VATRate:        8.1,
		Currency:       models.DefaultCurrency,
		VATStatus:      models.VATIncluded,
		Confidence:     0.75,
		Source:         "ocr",
	}
}

func TestEnrich_ParsesAnswer(t *testing.T) {
	completer := &fakeCompleter{answer: invoiceAnswer}
	enricher := NewEnricher(completer, Config{})

	record, err := enricher.Enrich(context.Background(), "FACTURE FA-2025-001", basicRecord())
	require.NoError(t, err)

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, models.DocClientInvoice, record.DocumentType)
	assert.Equal(t, "PUBLIGRAMA ADVERTISING S.L.", record.Client.Name)
	assert.Equal(t, "Espagne", record.Client.Country)
	assert.Equal(t, "HYPERVISUAL SA", record.Supplier.Name)
	assert.Equal(t, "1700 Fribourg", record.Supplier.PostalCity)
	assert.Equal(t, "FA-2025-001", record.DocumentNumber)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), record.IssueDate)
	assert.Nil(t, record.DueDate)
	require.NotNil(t, record.Amounts.NetHT)
	require.NotNil(t, record.Amounts.VAT)
	assert.InDelta(t, 1000, *record.Amounts.NetHT, 1e-9)
	assert.InDelta(t, 81, *record.Amounts.VAT, 1e-9)
	assert.InDelta(t, 1081, record.Amounts.GrossTTC, 1e-9)
	assert.Equal(t, "CHF", record.Currency)
	assert.Equal(t, models.VATIncluded, record.VATStatus)
	require.Len(t, record.LineItems, 1)
	assert.InDelta(t, 500, record.LineItems[0].UnitPrice, 1e-9)
	assert.Equal(t, "fake", record.Source)
}

func TestEnrich_FailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		config    Config
	}{
		{
			name:      "transport error",
			completer: &fakeCompleter{err: errors.New("connection refused")},
		},
		{
			name:      "not json",
			completer: &fakeCompleter{answer: "Je ne peux pas lire ce document."},
		},
		{
			name:      "malformed json",
			completer: &fakeCompleter{answer: `{"type": "facture_client",}`},
		},
		{
			name:      "timeout",
			completer: &fakeCompleter{answer: invoiceAnswer, delay: time.Second},
			config:    Config{Timeout: 20 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := NewEnricher(tt.completer, tt.config)

			record, err := enricher.Enrich(context.Background(), "text", basicRecord())

			require.Error(t, err)
			assert.Nil(t, record)
			assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
			assert.Equal(t, 1, tt.completer.calls, "no retry")

			var enrichErr *EnrichmentError
			require.ErrorAs(t, err, &enrichErr)
			assert.Equal(t, "fake", enrichErr.Provider)
		})
	}
}

func TestEnrich_TimeoutKeepsDeadlineCause(t *testing.T) {
	enricher := NewEnricher(&fakeCompleter{delay: time.Second}, Config{Timeout: 10 * time.Millisecond})

	_, err := enricher.Enrich(context.Background(), "text", basicRecord())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnrich_RateLimiterSpacesCalls(t *testing.T) {
	completer := &fakeCompleter{answer: invoiceAnswer}
	enricher := NewEnricher(completer, Config{RequestsPerSecond: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := enricher.Enrich(context.Background(), "text", basicRecord())
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, completer.calls)
}

func TestEnrich_CanceledContextSkipsCall(t *testing.T) {
	completer := &fakeCompleter{answer: invoiceAnswer}
	enricher := NewEnricher(completer, Config{RequestsPerSecond: 1})

	// Drain the single burst token.
	_, err := enricher.Enrich(context.Background(), "text", basicRecord())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = enricher.Enrich(ctx, "text", basicRecord())
	assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
	assert.Equal(t, 1, completer.calls)
}

func TestBuildPrompt(t *testing.T) {
	text := strings.Repeat("é", 3500)

	prompt, err := BuildPrompt(text, basicRecord(), DefaultMaxExcerpt)
	require.NoError(t, err)

	assert.Contains(t, prompt, strings.Repeat("é", 3000)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("é", 3001))
	assert.Contains(t, prompt, `"numero": "AUTO-1"`)
	assert.Contains(t, prompt, `"montant_ht": null`)
	assert.Contains(t, prompt, `"date": "2025-03-14"`)
	assert.Contains(t, prompt, "NE CALCULE PAS la TVA")
	assert.Contains(t, prompt, "CHF: TVA 8.1% (standard)")
	assert.Contains(t, prompt, `Si devise EUR et pas de mention TVA = suppose "hors_tva"`)
}

func TestParseResponse(t *testing.T) {
	t.Run("prose around object", func(t *testing.T) {
		record, err := ParseResponse(`Voici le résultat: {"type": "devis", "montant_ttc": 50} Merci.`, "gemini")
		require.NoError(t, err)
		assert.Equal(t, models.DocQuote, record.DocumentType)
		assert.InDelta(t, 50, record.Amounts.GrossTTC, 1e-9)
		assert.Equal(t, "gemini", record.Source)
	})

	t.Run("supplier as string", func(t *testing.T) {
		record, err := ParseResponse(`{"fournisseur": "Swisscom AG"}`, "openai")
		require.NoError(t, err)
		assert.Equal(t, "Swisscom AG", record.Supplier.Name)
	})

	t.Run("supplier with name key", func(t *testing.T) {
		record, err := ParseResponse(`{"fournisseur": {"name": "Migros"}}`, "openai")
		require.NoError(t, err)
		assert.Equal(t, "Migros", record.Supplier.Name)
	})

	t.Run("exempt status zeroes vat", func(t *testing.T) {
		record, err := ParseResponse(`{"vat_status": "hors_tva", "montant_tva": 19, "taux_tva": "20%", "montant_ttc": 100}`, "openai")
		require.NoError(t, err)
		assert.Equal(t, models.VATExcluded, record.VATStatus)
		require.NotNil(t, record.Amounts.VAT)
		assert.Zero(t, *record.Amounts.VAT)
		assert.Zero(t, record.VATRate)
	})

	t.Run("unknown enums left empty", func(t *testing.T) {
		record, err := ParseResponse(`{"type": "invoice", "entite": "acme", "vat_status": "gross"}`, "openai")
		require.NoError(t, err)
		assert.Empty(t, record.DocumentType)
		assert.Empty(t, record.Entity)
		assert.Empty(t, record.VATStatus)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := ParseResponse("nothing here", "openai")
		assert.ErrorIs(t, err, ErrNoJSON)
		assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
	})
}
