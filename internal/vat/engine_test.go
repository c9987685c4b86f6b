package vat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvat/internal/store"
)

var errStoreDown = errors.New("store down")

// failingStore rejects every call.
type failingStore struct{}

func (failingStore) SavePage(context.Context, string, store.Properties) (string, error) {
	return "", errStoreDown
}

func (failingStore) GetPage(context.Context, string, string) (*store.Page, error) {
	return nil, errStoreDown
}

func (failingStore) QueryPages(context.Context, string, store.Filter, store.Sort) ([]store.Page, error) {
	return nil, errStoreDown
}

func (failingStore) UpdatePage(context.Context, string, string, store.Properties) error {
	return errStoreDown
}

// archiveFailStore fails archive writes while failArchive is set.
type archiveFailStore struct {
	*store.BoltStore
	failArchive bool
}

func (s *archiveFailStore) SavePage(ctx context.Context, databaseID string, props store.Properties) (string, error) {
	if s.failArchive && databaseID == store.DatabaseVATArchive {
		return "", errStoreDown
	}
	return s.BoltStore.SavePage(ctx, databaseID, props)
}

type fakeSource struct {
	invoices Invoices
	err      error
	calls    []InvoiceKind
}

func (f *fakeSource) ListInvoices(_ context.Context, _, _ time.Time, kind InvoiceKind) ([]AccountingRecord, error) {
	f.calls = append(f.calls, kind)
	if f.err != nil {
		return nil, f.err
	}
	return f.invoices.byKind(kind), nil
}

func testEngine(t *testing.T, st store.Store, source AccountingSource, policy SubmitPolicy) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{
		Entity:      "Hypervisual SA",
		VATNumber:   "CHE-123.456.789 TVA",
		SubmittedBy: "Paul Martin",
		Policy:      policy,
		Clock:       func() time.Time { return submitted },
	}, st, source)
}

func boltStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s, err := store.OpenBolt(filepath.Join(t.TempDir(), "vat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEngine_CurrentBeforeOpen(t *testing.T) {
	e := testEngine(t, nil, nil, "")

	_, err := e.Current()
	assert.ErrorIs(t, err, ErrNoCurrentDeclaration)

	_, err = e.Submit(context.Background(), 2025, "Q1")
	assert.ErrorIs(t, err, ErrNoCurrentDeclaration)
}

func TestEngine_OpenTracksCurrent(t *testing.T) {
	e := testEngine(t, nil, nil, "")

	q1, err := e.Open(2025, "q1", "")
	require.NoError(t, err)
	assert.Equal(t, "TVA-2025-Q1", q1.ID)
	assert.Equal(t, "Hypervisual SA", q1.Entity)

	_, err = e.Open(2025, "M2", MethodEffective)
	require.NoError(t, err)

	current, err := e.Current()
	require.NoError(t, err)
	assert.Equal(t, "TVA-2025-M2", current.ID)

	_, err = e.Update(2025, "Q1", SectionCollected, CategoryNormalRate, Amounts{NetAmount: 1000})
	require.NoError(t, err)

	again, err := e.Open(2025, "Q1", "")
	require.NoError(t, err)
	assert.Equal(t, 81.0, again.Collected.NormalRate.VATAmount, "reopen keeps the context")

	again.Collected.NormalRate.VATAmount = 0
	stored, err := e.Get(2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, 81.0, stored.Collected.NormalRate.VATAmount, "returned values are copies")

	_, err = e.Open(2025, "Q9", "")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestEngine_LoadFromAccounting(t *testing.T) {
	source := &fakeSource{invoices: Invoices{
		ClientInvoices:   []AccountingRecord{{NetAmount: 1000}, {NetAmount: 2000}},
		SupplierInvoices: []AccountingRecord{{NetAmount: 500, VATAmount: float64Ptr(40.5), AFCCategory: "Investissements"}},
	}}
	e := testEngine(t, nil, source, "")

	result, err := e.LoadFromAccounting(context.Background(), 2025, "Q2")
	require.NoError(t, err)

	assert.False(t, result.UsedFallback)
	assert.Equal(t, []InvoiceKind{KindClientInvoice, KindSupplierInvoice, KindExpenseNote}, source.calls)
	assert.Equal(t, 3000.0, result.Declaration.Collected.NormalRate.NetAmount)
	assert.Equal(t, 243.0, result.Declaration.Collected.TotalCollected)
	assert.Equal(t, 40.5, result.Declaration.Deductible.Investments.VATAmount)
	assert.Equal(t, 202.5, result.Declaration.Result.VATToPay)

	current, err := e.Current()
	require.NoError(t, err)
	assert.Equal(t, "TVA-2025-Q2", current.ID)
}

func TestEngine_LoadFromAccountingFallback(t *testing.T) {
	for name, source := range map[string]AccountingSource{
		"nil source":    nil,
		"source failed": &fakeSource{err: ErrAccountingUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			e := testEngine(t, nil, source, "")

			result, err := e.LoadFromAccounting(context.Background(), 2025, "Q1")
			require.NoError(t, err)

			assert.True(t, result.UsedFallback)
			d := result.Declaration
			assert.Equal(t, 130000.0, d.Collected.NormalRate.NetAmount)
			assert.Equal(t, 10530.0, d.Collected.TotalCollected)
			assert.Equal(t, 2430.0, d.Deductible.Goods.VATAmount)
			assert.Equal(t, 3240.0, d.Deductible.Services.VATAmount)
			assert.Equal(t, 4860.0, d.Result.VATToPay)
		})
	}
}

func TestEngine_SubmitPersists(t *testing.T) {
	st := boltStore(t)
	e := testEngine(t, st, FallbackSource{}, "")
	ctx := context.Background()

	_, err := e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)

	decl, err := e.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, decl.Status)
	assert.Equal(t, "Paul Martin", decl.SubmittedBy)
	assert.NotEmpty(t, decl.StoreID)
	assert.Empty(t, decl.PersistenceError)

	page, err := st.GetPage(ctx, store.DatabaseVATDeclarations, decl.StoreID)
	require.NoError(t, err)
	assert.Equal(t, "2025 Q1", page.Properties["period"])
	assert.Equal(t, "submitted", page.Properties["status"])
	assert.Equal(t, 4860.0, page.Properties["vat_to_pay"])
	assert.Equal(t, true, page.Properties["controls_ok"])

	history, err := e.History(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "TVA-2025-Q1", history[0].DeclarationID)
	assert.Equal(t, 2025, history[0].Year)
	assert.Equal(t, "Q1", history[0].PeriodCode)
	assert.Equal(t, StatusSubmitted, history[0].Status)
	assert.Equal(t, 10530.0, history[0].RateDetail["8.1%"])
	assert.Equal(t, 4860.0, history[0].Rubriques["500"])

	empty, err := e.History(ctx, 2024)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEngine_SubmitRefusedWhenAlreadyStored(t *testing.T) {
	st := boltStore(t)
	ctx := context.Background()

	first := testEngine(t, st, nil, "")
	_, err := first.Open(2025, "Q1", "")
	require.NoError(t, err)
	_, err = first.Update(2025, "Q1", SectionCollected, CategoryNormalRate, Amounts{NetAmount: 10000})
	require.NoError(t, err)
	decl, err := first.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, 810.0, decl.Result.VATToPay)

	// A later run starts from an empty engine over the same store.
	second := testEngine(t, st, nil, "")
	_, err = second.Open(2025, "Q1", "")
	require.NoError(t, err)
	_, err = second.Update(2025, "Q1", SectionCollected, CategoryNormalRate, Amounts{NetAmount: 20000})
	require.NoError(t, err)

	_, err = second.Submit(ctx, 2025, "Q1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	draft, err := second.Get(2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, draft.Status)
	assert.Empty(t, draft.StoreID)

	pages, err := st.QueryPages(ctx, store.DatabaseVATDeclarations,
		store.Filter{Property: "declaration_id", Equals: "TVA-2025-Q1"}, store.Sort{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 810.0, pages[0].Properties["vat_to_pay"])

	history, err := second.History(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	other := NewEngine(EngineConfig{Entity: "Autre SA", Clock: func() time.Time { return submitted }}, st, nil)
	_, err = other.Open(2025, "Q1", "")
	require.NoError(t, err)
	_, err = other.Submit(ctx, 2025, "Q1")
	assert.NoError(t, err, "another entity has its own declaration")
}

func TestEngine_SubmitKeepLocalOnPersistFailure(t *testing.T) {
	e := testEngine(t, failingStore{}, FallbackSource{}, KeepLocalOnPersistFailure)
	ctx := context.Background()

	_, err := e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)

	decl, err := e.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, decl.Status)
	assert.Contains(t, decl.PersistenceError, "store down")
	assert.Empty(t, decl.StoreID)

	history, err := e.History(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, history, 1, "local history when the store fails")
	assert.Equal(t, "TVA-2025-Q1", history[0].DeclarationID)
}

func TestEngine_SubmitRollbackOnPersistFailure(t *testing.T) {
	e := testEngine(t, failingStore{}, FallbackSource{}, RollbackOnPersistFailure)
	ctx := context.Background()

	_, err := e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)

	_, err = e.Submit(ctx, 2025, "Q1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailure)

	decl, err := e.Get(2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, decl.Status)
	assert.Empty(t, decl.Result.PaymentReference)

	_, err = e.Update(2025, "Q1", SectionCollected, CategoryReducedRate, Amounts{NetAmount: 100})
	assert.NoError(t, err, "still editable")
}

func TestEngine_SubmitRefusedByControls(t *testing.T) {
	e := testEngine(t, nil, nil, "")
	ctx := context.Background()

	_, err := e.Open(2025, "Q1", "")
	require.NoError(t, err)
	e.contexts[Key{Entity: "Hypervisual SA", Year: 2025, Period: "Q1"}].Declaration.Collected.TotalCollected = 99

	_, err = e.Submit(ctx, 2025, "Q1")
	assert.ErrorIs(t, err, ErrCoherenceFailed)

	decl, err := e.Get(2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, decl.Status)
}

func TestEngine_Archive(t *testing.T) {
	st := boltStore(t)
	e := testEngine(t, st, FallbackSource{}, "")
	ctx := context.Background()

	_, err := e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)

	_, err = e.Archive(ctx, 2025, "Q1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	submittedDecl, err := e.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)

	archived, err := e.Archive(ctx, 2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)
	assert.Equal(t, submittedDecl.Result, archived.Result)
	require.NotNil(t, archived.RetentionUntil)
	assert.Equal(t, 2035, archived.RetentionUntil.Year())

	pages, err := st.QueryPages(ctx, store.DatabaseVATArchive,
		store.Filter{Property: "declaration_id", Equals: "TVA-2025-Q1"}, store.Sort{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "2035-04-15", pages[0].Properties["retention_until"])
	assert.Contains(t, pages[0].Properties["document"], `"status":"archived"`)

	page, err := st.GetPage(ctx, store.DatabaseVATDeclarations, archived.StoreID)
	require.NoError(t, err)
	assert.Equal(t, "archived", page.Properties["status"])

	_, err = e.Update(2025, "Q1", SectionDeductible, CategoryGoods, Amounts{})
	assert.ErrorIs(t, err, ErrDeclarationLocked)
}

func TestEngine_ArchiveRollbackLeavesNoCopy(t *testing.T) {
	st := &archiveFailStore{BoltStore: boltStore(t), failArchive: true}
	e := testEngine(t, st, FallbackSource{}, RollbackOnPersistFailure)
	ctx := context.Background()

	_, err := e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)
	decl, err := e.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)

	_, err = e.Archive(ctx, 2025, "Q1")
	assert.ErrorIs(t, err, ErrPersistenceFailure)

	page, err := st.GetPage(ctx, store.DatabaseVATDeclarations, decl.StoreID)
	require.NoError(t, err)
	assert.Equal(t, "submitted", page.Properties["status"])

	local, err := e.Get(2025, "Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, local.Status)

	archiveQuery := store.Filter{Property: "declaration_id", Equals: "TVA-2025-Q1"}
	copies, err := st.QueryPages(ctx, store.DatabaseVATArchive, archiveQuery, store.Sort{})
	require.NoError(t, err)
	assert.Empty(t, copies)

	st.failArchive = false
	_, err = e.Archive(ctx, 2025, "Q1")
	require.NoError(t, err)

	copies, err = st.QueryPages(ctx, store.DatabaseVATArchive, archiveQuery, store.Sort{})
	require.NoError(t, err)
	assert.Len(t, copies, 1)

	page, err = st.GetPage(ctx, store.DatabaseVATDeclarations, decl.StoreID)
	require.NoError(t, err)
	assert.Equal(t, "archived", page.Properties["status"])
}

func TestEngine_HistoryIsCachedUntilSubmit(t *testing.T) {
	st := boltStore(t)
	e := testEngine(t, st, FallbackSource{}, "")
	ctx := context.Background()

	first, err := e.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, first)

	_, err = st.SavePage(ctx, store.DatabaseVATDeclarations, store.Properties{"period": "2024 Q4", "end_date": "2024-12-31"})
	require.NoError(t, err)

	cached, err := e.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, cached, "served from cache")

	_, err = e.LoadFromAccounting(ctx, 2025, "Q1")
	require.NoError(t, err)
	_, err = e.Submit(ctx, 2025, "Q1")
	require.NoError(t, err)

	fresh, err := e.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, 2025, fresh[0].Year)
	assert.Equal(t, "Q1", fresh[0].PeriodCode)
	assert.Equal(t, 2024, fresh[1].Year)
}

func TestEngine_CompareMethods(t *testing.T) {
	e := testEngine(t, nil, FallbackSource{}, "")

	assert.Equal(t, 0.0, e.CompareMethods(100000).Effective)

	_, err := e.LoadFromAccounting(context.Background(), 2025, "Q1")
	require.NoError(t, err)

	cmp := e.CompareMethods(100000)
	assert.Equal(t, 4860.0, cmp.Effective)
	assert.Equal(t, MethodForfait, cmp.Recommendation)
}

func TestEngine_Export(t *testing.T) {
	e := testEngine(t, nil, FallbackSource{}, "")

	_, err := e.Export(2025, "Q1")
	assert.ErrorIs(t, err, ErrNoCurrentDeclaration)

	_, err = e.LoadFromAccounting(context.Background(), 2025, "Q1")
	require.NoError(t, err)

	out, err := e.Export(2025, "Q1")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<Rubrique500>4860.00</Rubrique500>")
}
