package vat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docvat/internal/store"
)

const isoDate = "2006-01-02"

// Property names of declaration pages.
const (
	propPeriod           = "period"
	propEntity           = "entity"
	propStartDate        = "start_date"
	propEndDate          = "end_date"
	propDueDate          = "due_date"
	propTotalCollected   = "total_collected"
	propTotalDeductible  = "total_deductible"
	propVATToPay         = "vat_to_pay"
	propVATToRecover     = "vat_to_recover"
	propStatus           = "status"
	propRateDetail       = "rate_detail"
	propRevenue          = "revenue_total"
	propMethod           = "method"
	propRubriques        = "rubriques"
	propDeclarationID    = "declaration_id"
	propPaymentReference = "payment_reference"
	propSubmittedBy      = "submitted_by"
	propSubmittedAt      = "submitted_at"
	propControlsOK       = "controls_ok"
	propComment          = "comment"
	propArchivedAt       = "archived_at"
	propRetentionUntil   = "retention_until"
	propDocument         = "document"
)

// declarationProperties flattens a declaration into a store page.
func declarationProperties(d *Declaration, controls []Control, now time.Time) (store.Properties, error) {
	rates, err := json.Marshal(d.RateDetail())
	if err != nil {
		return nil, err
	}
	rubriques, err := json.Marshal(d.RubriqueDetail())
	if err != nil {
		return nil, err
	}

	props := store.Properties{
		propPeriod:           d.Period.Label(),
		propEntity:           d.Entity,
		propStartDate:        d.Period.Start.Format(isoDate),
		propEndDate:          d.Period.End.Format(isoDate),
		propDueDate:          d.Period.Due.Format(isoDate),
		propTotalCollected:   d.Collected.TotalCollected,
		propTotalDeductible:  d.Deductible.TotalDeductible,
		propVATToPay:         d.Result.VATToPay,
		propVATToRecover:     d.Result.VATToRecover,
		propStatus:           string(d.Status),
		propRateDetail:       string(rates),
		propRevenue:          d.Revenue(),
		propMethod:           string(d.Method),
		propRubriques:        string(rubriques),
		propDeclarationID:    d.ID,
		propPaymentReference: d.Result.PaymentReference,
		propSubmittedBy:      d.SubmittedBy,
		propControlsOK:       len(controls) > 0 && !HasErrors(controls),
		propComment:          fmt.Sprintf("Déclaration enregistrée le %s", now.Format("02.01.2006")),
	}
	if d.SubmittedAt != nil {
		props[propSubmittedAt] = d.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return props, nil
}

// archiveProperties stores the full archived declaration as JSON.
func archiveProperties(d *Declaration) (store.Properties, error) {
	doc, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	props := store.Properties{
		propDeclarationID: d.ID,
		propPeriod:        d.Period.Label(),
		propEntity:        d.Entity,
		propDocument:      string(doc),
	}
	if d.ArchivedAt != nil {
		props[propArchivedAt] = d.ArchivedAt.UTC().Format(time.RFC3339)
	}
	if d.RetentionUntil != nil {
		props[propRetentionUntil] = d.RetentionUntil.UTC().Format(isoDate)
	}
	return props, nil
}

// HistoryEntry summarizes a stored declaration.
type HistoryEntry struct {
	StoreID          string             `json:"store_id,omitempty"`
	DeclarationID    string             `json:"declaration_id"`
	Entity           string             `json:"entity"`
	Year             int                `json:"year"`
	PeriodCode       string             `json:"period_code"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date"`
	DueDate          string             `json:"due_date"`
	TotalCollected   float64            `json:"total_collected"`
	TotalDeductible  float64            `json:"total_deductible"`
	VATToPay         float64            `json:"vat_to_pay"`
	VATToRecover     float64            `json:"vat_to_recover"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	Status           Status             `json:"status"`
	Method           Method             `json:"method"`
	Revenue          float64            `json:"revenue"`
	RateDetail       map[string]float64 `json:"rate_detail,omitempty"`
	Rubriques        map[string]float64 `json:"rubriques,omitempty"`
}

func historyEntryFromPage(p store.Page) HistoryEntry {
	props := p.Properties

	entry := HistoryEntry{
		StoreID:          p.ID,
		DeclarationID:    propString(props, propDeclarationID),
		Entity:           propString(props, propEntity),
		StartDate:        propString(props, propStartDate),
		EndDate:          propString(props, propEndDate),
		DueDate:          propString(props, propDueDate),
		TotalCollected:   propFloat(props, propTotalCollected),
		TotalDeductible:  propFloat(props, propTotalDeductible),
		VATToPay:         propFloat(props, propVATToPay),
		VATToRecover:     propFloat(props, propVATToRecover),
		PaymentReference: propString(props, propPaymentReference),
		Status:           Status(propString(props, propStatus)),
		Method:           Method(propString(props, propMethod)),
		Revenue:          propFloat(props, propRevenue),
	}
	if entry.Status == "" {
		entry.Status = StatusDraft
	}

	if year, code, ok := strings.Cut(propString(props, propPeriod), " "); ok {
		entry.Year, _ = strconv.Atoi(year)
		entry.PeriodCode = code
	}

	_ = json.Unmarshal([]byte(propString(props, propRateDetail)), &entry.RateDetail)
	_ = json.Unmarshal([]byte(propString(props, propRubriques)), &entry.Rubriques)
	return entry
}

func historyEntryFromDeclaration(d *Declaration) HistoryEntry {
	return HistoryEntry{
		StoreID:          d.StoreID,
		DeclarationID:    d.ID,
		Entity:           d.Entity,
		Year:             d.Period.Year,
		PeriodCode:       d.Period.Code,
		StartDate:        d.Period.Start.Format(isoDate),
		EndDate:          d.Period.End.Format(isoDate),
		DueDate:          d.Period.Due.Format(isoDate),
		TotalCollected:   d.Collected.TotalCollected,
		TotalDeductible:  d.Deductible.TotalDeductible,
		VATToPay:         d.Result.VATToPay,
		VATToRecover:     d.Result.VATToRecover,
		PaymentReference: d.Result.PaymentReference,
		Status:           d.Status,
		Method:           d.Method,
		Revenue:          d.Revenue(),
		RateDetail:       d.RateDetail(),
		Rubriques:        d.RubriqueDetail(),
	}
}

func propString(props store.Properties, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func propFloat(props store.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
