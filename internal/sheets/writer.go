package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/sheets/v4"

	"docvat/internal/pipeline"
	"docvat/internal/vat"
	"docvat/pkg/models"
)

// ResultRow is one extraction result in the shared column layout.
type ResultRow struct {
	File        string
	Number      string
	Date        string
	Partner     string
	NetAmount   *float64
	VATAmount   *float64
	GrossAmount float64
	Currency    string
	Type        models.DocumentType
	VATStatus   models.VATStatus
	VATRate     float64
	AFCCategory string
	Source      string
	Score       float64
	Valid       bool
	Status      pipeline.BatchStatus
	ProcessedAt string
	Note        string
}

// TabForDocument returns the tab a document type is written to.
func TabForDocument(t models.DocumentType) string {
	switch t {
	case models.DocClientInvoice:
		return TabClientInvoices
	case models.DocSupplierInvoice:
		return TabSupplierInvoices
	case models.DocExpenseNote, models.DocCardReceipt:
		return TabExpenses
	}
	return TabQuotes
}

// RowFromItem converts a batch item. Failed items keep the error in the
// partner column and land on the error tab.
func RowFromItem(item pipeline.BatchItem, processedAt time.Time) (string, ResultRow) {
	row := ResultRow{
		File:        item.Name,
		Status:      item.Status,
		ProcessedAt: processedAt.Format("02.01.2006 15:04:05"),
	}
	if item.Result == nil {
		if item.Err != nil {
			row.Note = fmt.Sprintf("Erreur: %s", item.Err)
		}
		return TabErrors, row
	}

	r := item.Result.Record
	row.Number = r.DocumentNumber
	if !r.IssueDate.IsZero() {
		row.Date = r.IssueDate.Format("02.01.2006")
	}
	row.Partner = r.Client.Name
	if r.DocumentType == models.DocSupplierInvoice || r.DocumentType == models.DocExpenseNote || r.DocumentType == models.DocCardReceipt {
		row.Partner = r.Supplier.Name
	}
	row.NetAmount = r.Amounts.NetHT
	row.VATAmount = r.Amounts.VAT
	row.GrossAmount = r.Amounts.GrossTTC
	row.Currency = normalizeCurrency(r.Currency)
	row.Type = r.DocumentType
	row.VATStatus = r.VATStatus
	row.VATRate = r.VATRate
	row.Source = r.Source
	row.Score = item.Result.Report.Score
	row.Valid = item.Result.Report.Valid

	switch r.DocumentType {
	case models.DocSupplierInvoice:
		row.AFCCategory = vat.AFCGoods
	case models.DocExpenseNote, models.DocCardReceipt:
		row.AFCCategory = vat.AFCServices
	}

	return TabForDocument(r.DocumentType), row
}

// Values renders the row for the Sheets API.
func (row ResultRow) Values() []any {
	partner := row.Partner
	if row.Note != "" {
		partner = row.Note
	}
	return []any{
		row.File,
		row.Number,
		row.Date,
		partner,
		optional(row.NetAmount),
		optional(row.VATAmount),
		row.GrossAmount,
		row.Currency,
		string(row.Type),
		string(row.VATStatus),
		row.VATRate,
		row.AFCCategory,
		row.Source,
		row.Score,
		row.Valid,
		string(row.Status),
		row.ProcessedAt,
	}
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

// GroupByTab converts batch items to rows grouped by destination tab.
func GroupByTab(items []pipeline.BatchItem, processedAt time.Time) map[string][]ResultRow {
	groups := make(map[string][]ResultRow)
	for _, item := range items {
		tab, row := RowFromItem(item, processedAt)
		groups[tab] = append(groups[tab], row)
	}
	return groups
}

// WriteResults appends batch results to their tabs and returns the number
// of rows written per tab.
func (s *Service) WriteResults(ctx context.Context, items []pipeline.BatchItem, processedAt time.Time) (map[string]int, error) {
	const op = "WriteResults"

	groups := GroupByTab(items, processedAt)
	tabs := make([]string, 0, len(groups))
	for tab := range groups {
		tabs = append(tabs, tab)
	}
	sort.Strings(tabs)

	written := make(map[string]int, len(groups))
	for _, tab := range tabs {
		rows := groups[tab]
		s.log.Info().
			Str("sheet", tab).
			Int("rows", len(rows)).
			Msg("Writing batch results to Google Sheet")

		if err := s.ensureSheetWithHeaders(ctx, tab); err != nil {
			return written, fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
		}

		values := make([][]any, 0, len(rows))
		for _, row := range rows {
			values = append(values, row.Values())
		}

		_, err := s.sheetsService.Spreadsheets.Values.Append(
			s.spreadsheetID,
			tab+appendRange,
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return written, fmt.Errorf("%s: failed to append values to sheet %s: %w", op, tab, err)
		}
		written[tab] = len(values)
	}

	s.log.Info().
		Int("sheets", len(written)).
		Msg("Successfully wrote batch results to Google Sheet")
	return written, nil
}

// normalizeCurrency maps symbols and names to ISO codes, CHF by default.
func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))

	switch normalized {
	case "", "CHF", "FR.", "SFR", "FRANCS", "FRANKEN", "SWISS FRANC":
		return models.DefaultCurrency
	case "€", "EURO", "EUROS", "EUR":
		return "EUR"
	case "$", "DOLLAR", "DOLLARS", "USD", "US$":
		return "USD"
	case "£", "POUND", "POUNDS", "GBP":
		return "GBP"
	}
	if len(normalized) == 3 {
		return normalized
	}
	return models.DefaultCurrency
}
