package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"docvat/internal/store"
	"docvat/pkg/models"
)

// ErrStoreDisabled is returned by record queries without a store.
var ErrStoreDisabled = errors.New("record store disabled")

const isoDate = "2006-01-02"

func recordProperties(result *Result, now time.Time) (store.Properties, error) {
	r := result.Record
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	props := store.Properties{
		"document_id":     result.DocumentID,
		"name":            result.Name,
		"document_type":   string(r.DocumentType),
		"entity":          string(r.Entity),
		"client":          r.Client.Name,
		"supplier":        r.Supplier.Name,
		"document_number": r.DocumentNumber,
		"issue_date":      r.IssueDate.Format(isoDate),
		"gross_ttc":       r.Amounts.GrossTTC,
		"vat_rate":        r.VATRate,
		"currency":        r.Currency,
		"vat_status":      string(r.VATStatus),
		"confidence":      r.Confidence,
		"source":          r.Source,
		"valid":           result.Report.Valid,
		"score":           result.Report.Score,
		"enrichment_path": string(result.Outcome.EnrichmentPath),
		"ocr_placeholder": result.Outcome.OCRPlaceholder,
		"processed_at":    now.UTC().Format(time.RFC3339),
		"record":          string(doc),
	}
	if r.Amounts.NetHT != nil {
		props["net_ht"] = *r.Amounts.NetHT
	}
	if r.Amounts.VAT != nil {
		props["vat"] = *r.Amounts.VAT
	}
	return props, nil
}

// StoredRecord is a persisted extraction record.
type StoredRecord struct {
	StoreID        string                  `json:"store_id"`
	DocumentID     string                  `json:"document_id"`
	Name           string                  `json:"name,omitempty"`
	EnrichmentPath EnrichmentPath          `json:"enrichment_path"`
	Valid          bool                    `json:"valid"`
	Record         models.ExtractionRecord `json:"record"`
}

// Records lists persisted records, newest issue date first. An empty
// documentType lists every type.
func (p *Processor) Records(ctx context.Context, documentType models.DocumentType) ([]StoredRecord, error) {
	if p.store == nil {
		return nil, ErrStoreDisabled
	}

	filter := store.Filter{}
	if documentType != "" {
		filter = store.Filter{Property: "document_type", Equals: string(documentType)}
	}
	pages, err := p.store.QueryPages(ctx, store.DatabaseExtractionRecords, filter,
		store.Sort{Property: "issue_date", Descending: true})
	if err != nil {
		return nil, err
	}

	records := make([]StoredRecord, 0, len(pages))
	for _, page := range pages {
		stored := StoredRecord{StoreID: page.ID}
		stored.DocumentID, _ = page.Properties["document_id"].(string)
		stored.Name, _ = page.Properties["name"].(string)
		stored.Valid, _ = page.Properties["valid"].(bool)
		if path, ok := page.Properties["enrichment_path"].(string); ok {
			stored.EnrichmentPath = EnrichmentPath(path)
		}
		if doc, ok := page.Properties["record"].(string); ok {
			if err := json.Unmarshal([]byte(doc), &stored.Record); err != nil {
				p.log.Warn().
					Err(err).
					Str("store_id", page.ID).
					Msg("Skipping unreadable stored record")
				continue
			}
		}
		records = append(records, stored)
	}
	return records, nil
}
