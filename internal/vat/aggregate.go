package vat

import (
	"context"
	"strings"
	"time"
)

type InvoiceKind string

const (
	KindClientInvoice   InvoiceKind = "client_invoice"
	KindSupplierInvoice InvoiceKind = "supplier_invoice"
	KindExpenseNote     InvoiceKind = "expense_note"
)

// AFC categories of input tax as tagged in the books.
const (
	AFCGoods       = "Marchandises"
	AFCServices    = "Services"
	AFCInvestments = "Investissements"
)

// AccountingRecord is one booked document. VATAmount is nil when the books
// do not carry it.
type AccountingRecord struct {
	Date        time.Time `json:"date"`
	Reference   string    `json:"reference,omitempty"`
	Description string    `json:"description,omitempty"`
	NetAmount   float64   `json:"net_amount"`
	VATAmount   *float64  `json:"vat_amount,omitempty"`
	AFCCategory string    `json:"afc_category,omitempty"`
}

// AccountingSource lists booked documents of one kind whose date lies in
// [start, end], both inclusive calendar days.
type AccountingSource interface {
	ListInvoices(ctx context.Context, start, end time.Time, kind InvoiceKind) ([]AccountingRecord, error)
}

// Invoices groups the three datasets of a period.
type Invoices struct {
	ClientInvoices   []AccountingRecord `json:"client_invoices"`
	SupplierInvoices []AccountingRecord `json:"supplier_invoices"`
	Expenses         []AccountingRecord `json:"expenses"`
}

type NetVAT struct {
	Net float64 `json:"net"`
	VAT float64 `json:"vat"`
}

func (n *NetVAT) add(net, vat float64) {
	n.Net = sum(n.Net, net)
	n.VAT = sum(n.VAT, vat)
}

// VATData is the categorized sum of a period's invoices.
type VATData struct {
	Collected struct {
		Normal  NetVAT `json:"normal"`
		Reduced NetVAT `json:"reduced"`
		Lodging NetVAT `json:"lodging"`
	} `json:"collected"`
	Deductible struct {
		Goods       NetVAT `json:"goods"`
		Services    NetVAT `json:"services"`
		Investments NetVAT `json:"investments"`
	} `json:"deductible"`
}

// ProcessInvoicesForVAT sums invoices per declaration category. Client
// invoices are taxed at the normal rate; supplier invoices follow their AFC
// tag, goods by default; expense notes count as services.
func ProcessInvoicesForVAT(invoices Invoices) VATData {
	var data VATData

	for _, inv := range invoices.ClientInvoices {
		vat := CalculateVAT(inv.NetAmount, RateNormal.Percent)
		if inv.VATAmount != nil {
			vat = *inv.VATAmount
		}
		data.Collected.Normal.add(inv.NetAmount, vat)
	}

	for _, inv := range invoices.SupplierInvoices {
		vat := 0.0
		if inv.VATAmount != nil {
			vat = *inv.VATAmount
		}
		switch normalizeCategory(inv.AFCCategory) {
		case AFCServices:
			data.Deductible.Services.add(inv.NetAmount, vat)
		case AFCInvestments:
			data.Deductible.Investments.add(inv.NetAmount, vat)
		default:
			data.Deductible.Goods.add(inv.NetAmount, vat)
		}
	}

	for _, exp := range invoices.Expenses {
		vat := 0.0
		if exp.VATAmount != nil {
			vat = *exp.VATAmount
		}
		data.Deductible.Services.add(exp.NetAmount, vat)
	}

	return data
}

func normalizeCategory(tag string) string {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "services", "service", "prestations":
		return AFCServices
	case "investissements", "investissement", "investments":
		return AFCInvestments
	default:
		return AFCGoods
	}
}

// LoadInvoices fetches the three datasets of a period from source.
func LoadInvoices(ctx context.Context, source AccountingSource, period Period) (Invoices, error) {
	var invoices Invoices
	var err error

	if invoices.ClientInvoices, err = source.ListInvoices(ctx, period.Start, period.End, KindClientInvoice); err != nil {
		return Invoices{}, err
	}
	if invoices.SupplierInvoices, err = source.ListInvoices(ctx, period.Start, period.End, KindSupplierInvoice); err != nil {
		return Invoices{}, err
	}
	if invoices.Expenses, err = source.ListInvoices(ctx, period.Start, period.End, KindExpenseNote); err != nil {
		return Invoices{}, err
	}
	return invoices, nil
}

// FallbackSource serves a fixed dataset so declarations can be prepared
// without a live accounting connection. Dates are ignored.
type FallbackSource struct{}

func (FallbackSource) ListInvoices(_ context.Context, _, _ time.Time, kind InvoiceKind) ([]AccountingRecord, error) {
	return FallbackInvoices().byKind(kind), nil
}

func (i Invoices) byKind(kind InvoiceKind) []AccountingRecord {
	switch kind {
	case KindClientInvoice:
		return i.ClientInvoices
	case KindSupplierInvoice:
		return i.SupplierInvoices
	case KindExpenseNote:
		return i.Expenses
	}
	return nil
}

// FallbackInvoices is the documented offline dataset: two client invoices
// (net 125'000 and 5'000, both booked at the normal rate), goods and
// services supplier invoices, and one expense note.
func FallbackInvoices() Invoices {
	return Invoices{
		ClientInvoices: []AccountingRecord{
			{Reference: "FALLBACK-C1", NetAmount: 125000},
			{Reference: "FALLBACK-C2", NetAmount: 5000},
		},
		SupplierInvoices: []AccountingRecord{
			{Reference: "FALLBACK-S1", NetAmount: 30000, VATAmount: float64Ptr(2430), AFCCategory: AFCGoods},
			{Reference: "FALLBACK-S2", NetAmount: 15000, VATAmount: float64Ptr(1215), AFCCategory: AFCServices},
		},
		Expenses: []AccountingRecord{
			{Reference: "FALLBACK-E1", NetAmount: 25000, VATAmount: float64Ptr(2025)},
		},
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
