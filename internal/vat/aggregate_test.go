package vat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessInvoicesForVAT(t *testing.T) {
	data := ProcessInvoicesForVAT(Invoices{
		ClientInvoices: []AccountingRecord{
			{NetAmount: 1000},
			{NetAmount: 500, VATAmount: float64Ptr(40)},
		},
		SupplierInvoices: []AccountingRecord{
			{NetAmount: 100, VATAmount: float64Ptr(8.1)},
			{NetAmount: 200, VATAmount: float64Ptr(16.2), AFCCategory: "services"},
			{NetAmount: 300, VATAmount: float64Ptr(24.3), AFCCategory: " Investissement "},
			{NetAmount: 50, AFCCategory: "inconnu"},
		},
		Expenses: []AccountingRecord{
			{NetAmount: 80, VATAmount: float64Ptr(6.48)},
			{NetAmount: 20},
		},
	})

	assert.Equal(t, NetVAT{Net: 1500, VAT: 121}, data.Collected.Normal)
	assert.Equal(t, NetVAT{}, data.Collected.Reduced)
	assert.Equal(t, NetVAT{}, data.Collected.Lodging)
	assert.Equal(t, NetVAT{Net: 150, VAT: 8.1}, data.Deductible.Goods)
	assert.Equal(t, NetVAT{Net: 300, VAT: 22.68}, data.Deductible.Services)
	assert.Equal(t, NetVAT{Net: 300, VAT: 24.3}, data.Deductible.Investments)
}

func TestProcessInvoicesForVAT_Empty(t *testing.T) {
	assert.Equal(t, VATData{}, ProcessInvoicesForVAT(Invoices{}))
}

func TestLoadInvoices(t *testing.T) {
	q1 := Quarterly(2025)[0]

	invoices, err := LoadInvoices(context.Background(), FallbackSource{}, q1)
	require.NoError(t, err)
	assert.Equal(t, FallbackInvoices(), invoices)

	boom := errors.New("sheet unreachable")
	_, err = LoadInvoices(context.Background(), &fakeSource{err: boom}, q1)
	assert.ErrorIs(t, err, boom)
}

func TestLoadInvoices_PassesPeriodBounds(t *testing.T) {
	var gotStart, gotEnd time.Time
	source := sourceFunc(func(_ context.Context, start, end time.Time, _ InvoiceKind) ([]AccountingRecord, error) {
		gotStart, gotEnd = start, end
		return nil, nil
	})

	_, err := LoadInvoices(context.Background(), source, Monthly(2025)[1])
	require.NoError(t, err)
	assert.Equal(t, day(2025, 2, 1), gotStart)
	assert.Equal(t, day(2025, 2, 28), gotEnd)
}

type sourceFunc func(ctx context.Context, start, end time.Time, kind InvoiceKind) ([]AccountingRecord, error)

func (f sourceFunc) ListInvoices(ctx context.Context, start, end time.Time, kind InvoiceKind) ([]AccountingRecord, error) {
	return f(ctx, start, end, kind)
}
