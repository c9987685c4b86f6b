package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docvat/internal/extraction"
	"docvat/internal/logger"
	"docvat/internal/vat"
	"docvat/pkg/models"
)

// Column indexes of the shared layout.
const (
	colFile = iota
	colNumber
	colDate
	colPartner
	colNet
	colVAT
	colGross
	colCurrency
	colType
	colVATStatus
	colRate
	colAFCCategory
	colSource
	colScore
	colValid
	colStatus
	colProcessedAt
)

var dateLayouts = []string{"02.01.2006", "2006-01-02", "2.1.2006", "02/01/2006"}

// TabFor returns the tab holding documents of kind.
func TabFor(kind vat.InvoiceKind) (string, error) {
	switch kind {
	case vat.KindClientInvoice:
		return TabClientInvoices, nil
	case vat.KindSupplierInvoice:
		return TabSupplierInvoices, nil
	case vat.KindExpenseNote:
		return TabExpenses, nil
	}
	return "", fmt.Errorf("unknown invoice kind %q", kind)
}

// AccountingReader serves booked documents from the workbook to the VAT
// declaration.
type AccountingReader struct {
	service *Service
}

// NewAccountingReader returns a reader over s.
func NewAccountingReader(s *Service) *AccountingReader {
	return &AccountingReader{service: s}
}

// ListInvoices returns the rows of the kind's tab dated within [start, end].
// Rows without a readable date, rows marked as errors and rows in a currency
// other than CHF are skipped.
func (r *AccountingReader) ListInvoices(ctx context.Context, start, end time.Time, kind vat.InvoiceKind) ([]vat.AccountingRecord, error) {
	const op = "ListInvoices"

	tab, err := TabFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.service.ReadRange(ctx, tab+dataRange)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, skipped := RecordsInRange(rows, start, end)
	r.service.log.Debug().
		Str("sheet", tab).
		Int("rows", len(rows)).
		Int("records", len(records)).
		Int("skipped", skipped).
		Msg("Accounting rows loaded")
	return records, nil
}

// RecordsInRange converts sheet rows to accounting records, keeping those
// whose date lies within [start, end] by calendar day. It also returns the
// number of skipped rows. The declaration is in CHF, so rows carrying
// another currency are skipped rather than booked at face value.
func RecordsInRange(rows [][]any, start, end time.Time) ([]vat.AccountingRecord, int) {
	log := logger.WithComponent("sheets")
	from, to := truncateDay(start), truncateDay(end)

	records := []vat.AccountingRecord{}
	skipped := 0
	for _, row := range rows {
		if strings.EqualFold(cellString(row, colStatus), "error") {
			skipped++
			continue
		}
		date, ok := ParseDate(cellString(row, colDate))
		if !ok {
			skipped++
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}
		if cell := cellString(row, colCurrency); cell != "" {
			if currency := normalizeCurrency(cell); currency != models.DefaultCurrency {
				log.Warn().
					Str("file", cellString(row, colFile)).
					Str("reference", cellString(row, colNumber)).
					Str("currency", currency).
					Msg("Accounting row not in CHF, skipped")
				skipped++
				continue
			}
		}

		net, _ := cellFloat(row, colNet)
		record := vat.AccountingRecord{
			Date:        date,
			Reference:   cellString(row, colNumber),
			Description: cellString(row, colPartner),
			NetAmount:   net,
			AFCCategory: cellString(row, colAFCCategory),
		}
		if v, ok := cellFloat(row, colVAT); ok {
			record.VATAmount = &v
		}
		records = append(records, record)
	}
	return records, skipped
}

// ParseDate reads dd.mm.yyyy (the sheet's display format) or ISO dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cellString(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// cellFloat reads a number cell, formatted (1'234.50, 1.234,50, CHF 12.00)
// or raw.
func cellFloat(row []any, i int) (float64, bool) {
	if i >= len(row) {
		return 0, false
	}
	switch v := row[i].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		negative := strings.HasPrefix(s, "-")
		s = strings.TrimLeft(s, "-")
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(s, "CHF"), "CHF"))
		amount, ok := extraction.ParseAmount(s)
		if !ok {
			return 0, false
		}
		if negative {
			amount = -amount
		}
		return amount, true
	}
	return 0, false
}
