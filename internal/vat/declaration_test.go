package vat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	created   = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	submitted = time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
)

func newQ1(t *testing.T) *Declaration {
	t.Helper()
	period, err := LookupPeriod(2025, "Q1")
	require.NoError(t, err)
	return NewDeclaration(Params{
		Entity:    "Hypervisual SA",
		VATNumber: "CHE-123.456.789 TVA",
		Period:    period,
		CreatedAt: created,
	})
}

// fill applies the fallback dataset figures.
func fill(t *testing.T, d *Declaration) {
	t.Helper()
	require.NoError(t, d.Update(SectionCollected, CategoryNormalRate, Amounts{NetAmount: 130000}, created))
	require.NoError(t, d.Update(SectionDeductible, CategoryGoods, Amounts{NetAmount: 30000, VATAmount: 2430}, created))
	require.NoError(t, d.Update(SectionDeductible, CategoryServices, Amounts{NetAmount: 40000, VATAmount: 3240}, created))
}

func TestNewDeclaration(t *testing.T) {
	d := newQ1(t)

	assert.Equal(t, "TVA-2025-Q1", d.ID)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, MethodEffective, d.Method)
	assert.Equal(t, 8.1, d.Collected.NormalRate.Rate)
	assert.Equal(t, 2.6, d.Collected.ReducedRate.Rate)
	assert.Equal(t, 3.8, d.Collected.LodgingRate.Rate)
	assert.Equal(t, "pending", d.Result.PaymentStatus)
	assert.Equal(t, created, d.LastModified)
}

func TestUpdate_CollectedVATIsDerived(t *testing.T) {
	d := newQ1(t)
	modified := created.Add(time.Hour)

	require.NoError(t, d.Update(SectionCollected, CategoryNormalRate, Amounts{NetAmount: 1000, VATAmount: 999}, modified))
	require.NoError(t, d.Update(SectionCollected, CategoryReducedRate, Amounts{NetAmount: 5000}, modified))
	require.NoError(t, d.Update(SectionCollected, CategoryLodgingRate, Amounts{NetAmount: 2000}, modified))

	assert.Equal(t, 81.0, d.Collected.NormalRate.VATAmount)
	assert.Equal(t, 130.0, d.Collected.ReducedRate.VATAmount)
	assert.Equal(t, 76.0, d.Collected.LodgingRate.VATAmount)
	assert.Equal(t, 287.0, d.Collected.TotalCollected)
	assert.Equal(t, 8.1, d.Collected.NormalRate.Rate, "rate is fixed")
	assert.Equal(t, modified, d.LastModified)
}

func TestUpdate_DeductibleTakenAsGiven(t *testing.T) {
	d := newQ1(t)

	require.NoError(t, d.Update(SectionDeductible, CategoryInvestments, Amounts{NetAmount: 10000, VATAmount: 123.45}, created))
	require.NoError(t, d.Update(SectionDeductible, CategoryCorrections, Amounts{VATAmount: -23.45}, created))

	assert.Equal(t, 123.45, d.Deductible.Investments.VATAmount)
	assert.Equal(t, -23.45, d.Deductible.Corrections)
	assert.Equal(t, 100.0, d.Deductible.TotalDeductible)
	assert.Equal(t, 0.0, d.Result.VATToPay)
	assert.Equal(t, 100.0, d.Result.VATToRecover)
}

func TestUpdate_UnknownCategory(t *testing.T) {
	d := newQ1(t)

	assert.ErrorIs(t, d.Update(SectionCollected, CategoryGoods, Amounts{}, created), ErrUnknownCategory)
	assert.ErrorIs(t, d.Update(SectionDeductible, CategoryNormalRate, Amounts{}, created), ErrUnknownCategory)
	assert.ErrorIs(t, d.Update("result", CategoryGoods, Amounts{}, created), ErrUnknownCategory)
}

func TestCalculateTotals(t *testing.T) {
	d := newQ1(t)
	fill(t, d)

	assert.Equal(t, 10530.0, d.Collected.TotalCollected)
	assert.Equal(t, 5670.0, d.Deductible.TotalDeductible)
	assert.Equal(t, 4860.0, d.Result.VATToPay)
	assert.Equal(t, 0.0, d.Result.VATToRecover)

	before := *d
	d.CalculateTotals()
	d.CalculateTotals()
	assert.Equal(t, before.Result, d.Result, "idempotent")
	assert.Equal(t, before.Collected, d.Collected)
}

func TestCalculateTotals_ZeroBalance(t *testing.T) {
	d := newQ1(t)
	d.CalculateTotals()

	assert.Zero(t, d.Result.VATToPay)
	assert.Zero(t, d.Result.VATToRecover)
}

func TestRunCoherenceControls(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		d := newQ1(t)
		fill(t, d)

		controls := d.RunCoherenceControls()
		require.Len(t, controls, 3)
		for _, c := range controls {
			assert.Equal(t, ControlSuccess, c.Status, c.Name)
		}
		assert.False(t, HasErrors(controls))
	})

	t.Run("total mismatch is an error", func(t *testing.T) {
		d := newQ1(t)
		fill(t, d)
		d.Collected.TotalCollected += 0.5

		controls := d.RunCoherenceControls()
		assert.Equal(t, ControlError, controls[0].Status)
		assert.True(t, HasErrors(controls))
	})

	t.Run("rate drift is a warning", func(t *testing.T) {
		d := newQ1(t)
		fill(t, d)
		d.Collected.NormalRate.VATAmount += 0.06
		d.Collected.TotalCollected += 0.06

		controls := d.RunCoherenceControls()
		assert.Equal(t, ControlSuccess, controls[0].Status)
		assert.Equal(t, ControlWarning, controls[1].Status)
		assert.False(t, HasErrors(controls))
	})

	t.Run("rate drift within tolerance", func(t *testing.T) {
		d := newQ1(t)
		fill(t, d)
		d.Collected.NormalRate.VATAmount += 0.04
		d.Collected.TotalCollected += 0.04

		assert.Equal(t, ControlSuccess, d.RunCoherenceControls()[1].Status)
	})

	t.Run("revenue threshold advisory", func(t *testing.T) {
		d := newQ1(t)
		require.NoError(t, d.Update(SectionCollected, CategoryNormalRate, Amounts{NetAmount: 1_250_001}, created))

		controls := d.RunCoherenceControls()
		assert.Equal(t, ControlWarning, controls[2].Status)
		assert.Contains(t, controls[2].Message, "mensuelle recommandée")
	})

	t.Run("monthly period", func(t *testing.T) {
		period, err := LookupPeriod(2025, "M3")
		require.NoError(t, err)
		d := NewDeclaration(Params{Period: period, CreatedAt: created})
		require.NoError(t, d.Update(SectionCollected, CategoryNormalRate, Amounts{NetAmount: 2_000_000}, created))

		assert.Equal(t, ControlSuccess, d.RunCoherenceControls()[2].Status)
	})
}

func TestSubmit(t *testing.T) {
	d := newQ1(t)
	fill(t, d)

	controls, err := d.Submit("Paul Martin", submitted)
	require.NoError(t, err)
	assert.Len(t, controls, 3)

	assert.Equal(t, StatusSubmitted, d.Status)
	require.NotNil(t, d.SubmittedAt)
	assert.Equal(t, submitted, *d.SubmittedAt)
	assert.Equal(t, "Paul Martin", d.SubmittedBy)
	assert.Equal(t, "TVA-2025-Q1-M9IC01S0", d.Result.PaymentReference)

	_, err = d.Submit("Paul Martin", submitted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = d.Update(SectionCollected, CategoryNormalRate, Amounts{NetAmount: 1}, submitted)
	assert.ErrorIs(t, err, ErrDeclarationLocked)
	assert.Equal(t, 130000.0, d.Collected.NormalRate.NetAmount)
}

func TestSubmit_BlockedByControls(t *testing.T) {
	d := newQ1(t)
	fill(t, d)
	d.Collected.TotalCollected = 1

	controls, err := d.Submit("Paul Martin", submitted)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCoherenceFailed)
	assert.True(t, HasErrors(controls))
	assert.Equal(t, StatusDraft, d.Status)
	assert.Nil(t, d.SubmittedAt)
	assert.Empty(t, d.Result.PaymentReference)

	var declErr *DeclarationError
	require.ErrorAs(t, err, &declErr)
	assert.Equal(t, "TVA-2025-Q1", declErr.DeclarationID)
	assert.Len(t, declErr.Controls, 3)
}

func TestArchive(t *testing.T) {
	d := newQ1(t)
	fill(t, d)

	_, err := d.Archive(submitted)
	assert.ErrorIs(t, err, ErrInvalidTransition, "drafts cannot be archived")

	_, err = d.Submit("Paul Martin", submitted)
	require.NoError(t, err)

	archivedAt := submitted.AddDate(0, 1, 0)
	archived, err := d.Archive(archivedAt)
	require.NoError(t, err)

	assert.Equal(t, StatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, archivedAt, *archived.ArchivedAt)
	require.NotNil(t, archived.RetentionUntil)
	assert.Equal(t, time.Date(2035, 5, 15, 10, 0, 0, 0, time.UTC), *archived.RetentionUntil)
	assert.Equal(t, d.Collected, archived.Collected)
	assert.Equal(t, d.Deductible, archived.Deductible)
	assert.Equal(t, d.Result, archived.Result)
	assert.Equal(t, StatusSubmitted, d.Status, "source left untouched")

	_, err = archived.Archive(archivedAt)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, archived.Update(SectionDeductible, CategoryGoods, Amounts{}, archivedAt), ErrDeclarationLocked)
}

func TestRubriqueDetail(t *testing.T) {
	d := newQ1(t)
	fill(t, d)

	detail := d.RubriqueDetail()

	assert.Equal(t, 130000.0, detail["200"])
	assert.Equal(t, 10530.0, detail["303"])
	assert.Equal(t, 10530.0, detail["399"])
	assert.Equal(t, 2430.0, detail["400"])
	assert.Equal(t, 3240.0, detail["405"])
	assert.Equal(t, 5670.0, detail["479"])
	assert.Equal(t, 4860.0, detail["500"])
	assert.Equal(t, 0.0, detail["510"])
	for code := range detail {
		assert.NotEmpty(t, RubriqueLabel(code), code)
	}
}

func TestCompareMethods(t *testing.T) {
	cmp := CompareMethods(4860, 200000)

	require.Len(t, cmp.Forfait, 4)
	assert.Equal(t, 12400.0, cmp.Forfait[0].Amount)
	assert.Equal(t, 8400.0, cmp.Forfait[1].Amount)
	assert.Equal(t, 10400.0, cmp.Forfait[2].Amount)
	assert.Equal(t, 7000.0, cmp.Forfait[3].Amount)
	assert.Equal(t, "construction", cmp.Best.BusinessType)
	assert.Equal(t, MethodEffective, cmp.Recommendation)

	assert.Equal(t, MethodForfait, CompareMethods(7000, 200000).Recommendation, "ties go to forfait")
	assert.Equal(t, MethodForfait, CompareMethods(9000, 200000).Recommendation)
}

func TestCalculateVAT(t *testing.T) {
	assert.Equal(t, 81.0, CalculateVAT(1000, 8.1))
	assert.Equal(t, 1000.0, CalculateVAT(12345.67, 8.1))
	assert.Equal(t, 0.87, CalculateVAT(33.33, 2.6))
	assert.Equal(t, 10530.0, CalculateVAT(130000, 8.1))
	assert.Equal(t, 0.0, CalculateVAT(0, 3.8))
}

func TestFormatSwissAmount(t *testing.T) {
	tests := map[float64]string{
		0:           "0.00",
		100:         "100.00",
		1234.5:      "1'234.50",
		999999.999:  "1'000'000.00",
		1234567.891: "1'234'567.89",
		-9876.5:     "-9'876.50",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatSwissAmount(in), "%v", in)
	}
}

func TestExportAFC(t *testing.T) {
	d := newQ1(t)
	fill(t, d)
	before := d.Clone()

	out, err := d.ExportAFC()
	require.NoError(t, err)

	want := strings.Join([]string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<VATDeclaration xmlns="http://www.estv.admin.ch/xmlns/mwst/vat-declaration/1.0">`,
		`    <Header>`,
		`        <DeclarationId>TVA-2025-Q1</DeclarationId>`,
		`        <VATNumber>CHE-123.456.789 TVA</VATNumber>`,
		`        <Period>`,
		`            <Year>2025</Year>`,
		`            <Type>quarterly</Type>`,
		`            <Code>Q1</Code>`,
		`        </Period>`,
		`        <CreatedDate>2025-04-01T08:00:00Z</CreatedDate>`,
		`    </Header>`,
		`    <Revenue>`,
		`        <Rubrique302>130000.00</Rubrique302>`,
		`        <Rubrique303>10530.00</Rubrique303>`,
		`        <Rubrique312>0.00</Rubrique312>`,
		`        <Rubrique313>0.00</Rubrique313>`,
		`        <Rubrique342>0.00</Rubrique342>`,
		`        <Rubrique343>0.00</Rubrique343>`,
		`        <Rubrique399>10530.00</Rubrique399>`,
		`    </Revenue>`,
		`    <Deductible>`,
		`        <Rubrique400>2430.00</Rubrique400>`,
		`        <Rubrique405>3240.00</Rubrique405>`,
		`        <Rubrique410>0.00</Rubrique410>`,
		`        <Rubrique415>0.00</Rubrique415>`,
		`        <Rubrique479>5670.00</Rubrique479>`,
		`    </Deductible>`,
		`    <Result>`,
		`        <Rubrique500>4860.00</Rubrique500>`,
		`        <Rubrique510>0.00</Rubrique510>`,
		`    </Result>`,
		`</VATDeclaration>`,
		``,
	}, "\n")
	assert.Equal(t, want, string(out))
	assert.Equal(t, before, d, "export is side-effect free")
}
