// Package validation merges heuristic and enriched extraction records and
// checks the result for arithmetic and plausibility problems.
package validation

import (
	"strings"

	"docvat/internal/extraction"
	"docvat/pkg/models"
)

const (
	// EnrichedConfidence is the overall confidence of a merged record.
	EnrichedConfidence = 0.95
	// HeuristicConfidence is the overall confidence without enrichment.
	HeuristicConfidence = 0.75
)

// Merge combines the heuristic record with an optional enriched one. Each
// field takes the enriched value when it is set, then the heuristic value,
// then a fixed sentinel. Exempt statuses always end with zero VAT.
func Merge(basic models.ExtractionRecord, enriched *models.ExtractionRecord) models.ExtractionRecord {
	merged := basic
	merged.Confidence = HeuristicConfidence
	merged.Source = extraction.SourceHeuristics

	if enriched != nil {
		e := *enriched

		if e.DocumentType.Valid() {
			merged.DocumentType = e.DocumentType
		}
		if e.Entity.Valid() {
			merged.Entity = e.Entity
		}
		merged.Client = models.Client{
			Name:    firstString(e.Client.Name, basic.Client.Name),
			Address: firstString(e.Client.Address, basic.Client.Address),
			Country: firstString(e.Client.Country, basic.Client.Country),
		}
		merged.Supplier = models.Supplier{
			Name:       firstString(e.Supplier.Name, basic.Supplier.Name),
			Address:    firstString(e.Supplier.Address, basic.Supplier.Address),
			PostalCity: firstString(e.Supplier.PostalCity, basic.Supplier.PostalCity),
			TaxID:      firstString(e.Supplier.TaxID, basic.Supplier.TaxID),
		}
		if !e.IssueDate.IsZero() {
			merged.IssueDate = e.IssueDate
		}
		if e.DueDate != nil {
			merged.DueDate = e.DueDate
		}
		merged.DocumentNumber = firstString(e.DocumentNumber, basic.DocumentNumber)
		merged.Amounts = models.Amounts{
			NetHT:    firstAmount(e.Amounts.NetHT, basic.Amounts.NetHT),
			VAT:      firstAmount(e.Amounts.VAT, basic.Amounts.VAT),
			GrossTTC: firstFloat(e.Amounts.GrossTTC, basic.Amounts.GrossTTC),
		}
		merged.VATRate = firstFloat(e.VATRate, basic.VATRate)
		merged.Currency = firstString(e.Currency, basic.Currency)
		if e.VATStatus.Valid() {
			merged.VATStatus = e.VATStatus
		}
		if len(e.LineItems) > 0 {
			merged.LineItems = e.LineItems
		}

		merged.Confidence = EnrichedConfidence
		merged.Source = firstString(e.Source, "enrichment") + "+" + extraction.SourceHeuristics
	}

	merged.Client.Name = firstString(merged.Client.Name, models.UnknownClient)
	merged.Supplier.Name = firstString(merged.Supplier.Name, models.UnknownSupplier)
	merged.Currency = strings.ToUpper(firstString(merged.Currency, models.DefaultCurrency))
	if !merged.VATStatus.Valid() {
		merged.VATStatus = models.VATIncluded
	}

	merged.EnforceExemption()
	return merged
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// firstFloat treats zero as missing.
func firstFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// firstAmount returns the first non-zero amount, else zero when any value
// is set, else nil.
func firstAmount(values ...*float64) *float64 {
	var fallback *float64
	for _, v := range values {
		if v == nil {
			continue
		}
		if *v != 0 {
			return models.Float(*v)
		}
		if fallback == nil {
			fallback = models.Float(0)
		}
	}
	return fallback
}
