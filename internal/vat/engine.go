package vat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"docvat/internal/logger"
	"docvat/internal/store"
)

// SubmitPolicy decides what happens when a submitted or archived
// declaration cannot be persisted.
type SubmitPolicy string

const (
	// KeepLocalOnPersistFailure keeps the new status in memory and records
	// the failure on the declaration.
	KeepLocalOnPersistFailure SubmitPolicy = "keep-local"
	// RollbackOnPersistFailure leaves the declaration in its previous
	// status and returns ErrPersistenceFailure.
	RollbackOnPersistFailure SubmitPolicy = "rollback"
)

// DefaultHistoryTTL is how long declaration history reads are cached.
const DefaultHistoryTTL = 5 * time.Minute

// EngineConfig configures an Engine.
type EngineConfig struct {
	Entity      string
	VATNumber   string
	SubmittedBy string
	Policy      SubmitPolicy
	HistoryTTL  time.Duration
	Clock       func() time.Time
}

// Key identifies a declaration.
type Key struct {
	Entity string
	Year   int
	Period string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Entity, k.Year, k.Period)
}

// DeclarationContext is the engine's state for one declaration.
type DeclarationContext struct {
	Declaration  *Declaration
	UsedFallback bool
	Data         *VATData
}

// LoadResult reports what LoadFromAccounting applied.
type LoadResult struct {
	Declaration  *Declaration `json:"declaration"`
	Data         VATData      `json:"data"`
	UsedFallback bool         `json:"used_fallback"`
}

// Engine holds declarations being prepared, one per (entity, year, period).
// All methods are safe for concurrent use and return copies.
type Engine struct {
	mu       sync.Mutex
	config   EngineConfig
	store    store.Store
	source   AccountingSource
	contexts map[Key]*DeclarationContext
	current  Key
	hasCur   bool
	history  *cache.Cache
	log      zerolog.Logger
}

// NewEngine returns an Engine. A nil store keeps declarations in memory
// only; a nil source always uses the fallback dataset.
func NewEngine(config EngineConfig, st store.Store, source AccountingSource) *Engine {
	if config.Policy == "" {
		config.Policy = KeepLocalOnPersistFailure
	}
	if config.HistoryTTL <= 0 {
		config.HistoryTTL = DefaultHistoryTTL
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		config:   config,
		store:    st,
		source:   source,
		contexts: make(map[Key]*DeclarationContext),
		history:  cache.New(config.HistoryTTL, 2*config.HistoryTTL),
		log:      logger.WithComponent("vat").With().Str("entity", config.Entity).Logger(),
	}
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.config.Clock()
}

func (e *Engine) key(year int, code string) (Key, Period, error) {
	period, err := LookupPeriod(year, code)
	if err != nil {
		return Key{}, Period{}, err
	}
	return Key{Entity: e.config.Entity, Year: year, Period: period.Code}, period, nil
}

// Open returns the declaration for the period, creating an empty draft if
// needed, and makes it current.
func (e *Engine) Open(year int, code string, method Method) (*Declaration, error) {
	key, period, err := e.key(year, code)
	if err != nil {
		return nil, WrapDeclarationError("Open", DeclarationID(year, code), err, "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dc := e.openLocked(key, period, method)
	return dc.Declaration.Clone(), nil
}

func (e *Engine) openLocked(key Key, period Period, method Method) *DeclarationContext {
	dc, ok := e.contexts[key]
	if !ok {
		dc = &DeclarationContext{
			Declaration: NewDeclaration(Params{
				Entity:    e.config.Entity,
				VATNumber: e.config.VATNumber,
				Period:    period,
				Method:    method,
				CreatedAt: e.config.Clock(),
			}),
		}
		e.contexts[key] = dc
		e.log.Debug().Str("declaration_id", dc.Declaration.ID).Msg("Declaration opened")
	}
	e.current, e.hasCur = key, true
	return dc
}

// OpenCurrentQuarter opens the quarter containing the engine clock.
func (e *Engine) OpenCurrentQuarter() (*Declaration, error) {
	q := CurrentQuarter(e.config.Clock())
	return e.Open(q.Year, q.Code, MethodEffective)
}

// Current returns the most recently opened declaration.
func (e *Engine) Current() (*Declaration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasCur {
		return nil, NewDeclarationError("Current", "", ErrNoCurrentDeclaration, "")
	}
	return e.contexts[e.current].Declaration.Clone(), nil
}

// Get returns an opened declaration without changing the current one.
func (e *Engine) Get(year int, code string) (*Declaration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dc, err := e.contextLocked("Get", year, code)
	if err != nil {
		return nil, err
	}
	return dc.Declaration.Clone(), nil
}

func (e *Engine) contextLocked(op string, year int, code string) (*DeclarationContext, error) {
	key, _, err := e.key(year, code)
	if err != nil {
		return nil, WrapDeclarationError(op, DeclarationID(year, code), err, "")
	}
	dc, ok := e.contexts[key]
	if !ok {
		return nil, NewDeclarationError(op, DeclarationID(year, key.Period), ErrNoCurrentDeclaration, "declaration not opened")
	}
	return dc, nil
}

// Update edits one line of an opened draft.
func (e *Engine) Update(year int, code string, section Section, category Category, amounts Amounts) (*Declaration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dc, err := e.contextLocked("Update", year, code)
	if err != nil {
		return nil, err
	}
	if err := dc.Declaration.Update(section, category, amounts, e.config.Clock()); err != nil {
		return nil, err
	}
	return dc.Declaration.Clone(), nil
}

// Controls runs the coherence controls of an opened declaration.
func (e *Engine) Controls(year int, code string) ([]Control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dc, err := e.contextLocked("Controls", year, code)
	if err != nil {
		return nil, err
	}
	return dc.Declaration.RunCoherenceControls(), nil
}

// LoadFromAccounting opens the period and fills it from the accounting
// source. When the source fails, the fallback dataset is applied instead
// and the result says so.
func (e *Engine) LoadFromAccounting(ctx context.Context, year int, code string) (*LoadResult, error) {
	const op = "LoadFromAccounting"

	key, period, err := e.key(year, code)
	if err != nil {
		return nil, WrapDeclarationError(op, DeclarationID(year, code), err, "")
	}

	usedFallback := false
	var invoices Invoices
	if e.source == nil {
		usedFallback = true
	} else if invoices, err = LoadInvoices(ctx, e.source, period); err != nil {
		e.log.Warn().
			Err(err).
			Str("period", period.Label()).
			Str("path", "fallback_dataset").
			Msg("Accounting source unavailable, using fallback dataset")
		usedFallback = true
	}
	if usedFallback {
		invoices = FallbackInvoices()
	}
	data := ProcessInvoicesForVAT(invoices)

	e.mu.Lock()
	defer e.mu.Unlock()

	dc := e.openLocked(key, period, MethodEffective)
	decl := dc.Declaration.Clone()
	now := e.config.Clock()

	updates := []struct {
		section  Section
		category Category
		amounts  Amounts
	}{
		{SectionCollected, CategoryNormalRate, Amounts{NetAmount: data.Collected.Normal.Net}},
		{SectionCollected, CategoryReducedRate, Amounts{NetAmount: data.Collected.Reduced.Net}},
		{SectionCollected, CategoryLodgingRate, Amounts{NetAmount: data.Collected.Lodging.Net}},
		{SectionDeductible, CategoryGoods, Amounts{NetAmount: data.Deductible.Goods.Net, VATAmount: data.Deductible.Goods.VAT}},
		{SectionDeductible, CategoryServices, Amounts{NetAmount: data.Deductible.Services.Net, VATAmount: data.Deductible.Services.VAT}},
		{SectionDeductible, CategoryInvestments, Amounts{NetAmount: data.Deductible.Investments.Net, VATAmount: data.Deductible.Investments.VAT}},
	}
	for _, u := range updates {
		if err := decl.Update(u.section, u.category, u.amounts, now); err != nil {
			return nil, err
		}
	}

	dc.Declaration = decl
	dc.UsedFallback = usedFallback
	dc.Data = &data

	e.log.Info().
		Str("declaration_id", decl.ID).
		Bool("used_fallback", usedFallback).
		Float64("total_collected", decl.Collected.TotalCollected).
		Float64("total_deductible", decl.Deductible.TotalDeductible).
		Msg("Declaration loaded from accounting")

	return &LoadResult{Declaration: decl.Clone(), Data: data, UsedFallback: usedFallback}, nil
}

// Submit submits an opened draft and persists it according to the policy.
func (e *Engine) Submit(ctx context.Context, year int, code string) (*Declaration, error) {
	const op = "Submit"

	e.mu.Lock()
	defer e.mu.Unlock()

	dc, err := e.contextLocked(op, year, code)
	if err != nil {
		return nil, err
	}

	if err := e.checkNotSubmitted(ctx, dc.Declaration); err != nil {
		return nil, err
	}

	now := e.config.Clock()
	decl := dc.Declaration.Clone()
	controls, err := decl.Submit(e.config.SubmittedBy, now)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("declaration_id", decl.ID).
			Msg("Declaration submission refused")
		return nil, err
	}

	if err := e.persistDeclaration(ctx, decl, controls, now); err != nil {
		if e.config.Policy == RollbackOnPersistFailure {
			e.log.Warn().
				Err(err).
				Str("declaration_id", decl.ID).
				Str("path", "rollback").
				Msg("Declaration not persisted, submission rolled back")
			return nil, NewDeclarationError(op, decl.ID, ErrPersistenceFailure, err.Error())
		}
		decl.PersistenceError = err.Error()
		e.log.Warn().
			Err(err).
			Str("declaration_id", decl.ID).
			Str("path", "keep_local").
			Msg("Declaration not persisted, kept submitted locally")
	}

	dc.Declaration = decl
	e.history.Flush()

	e.log.Info().
		Str("declaration_id", decl.ID).
		Str("payment_reference", decl.Result.PaymentReference).
		Float64("vat_to_pay", decl.Result.VATToPay).
		Float64("vat_to_recover", decl.Result.VATToRecover).
		Msg("Declaration submitted")

	return decl.Clone(), nil
}

// checkNotSubmitted refuses a draft whose identity is already stored past
// the draft status, by another process or an earlier run. A failing store
// is left to persistDeclaration and the submit policy.
func (e *Engine) checkNotSubmitted(ctx context.Context, decl *Declaration) error {
	const op = "Submit"

	if e.store == nil || decl.StoreID != "" {
		return nil
	}

	pages, err := e.store.QueryPages(ctx, store.DatabaseVATDeclarations,
		store.Filter{Property: propDeclarationID, Equals: decl.ID}, store.Sort{})
	if err != nil {
		e.log.Debug().
			Err(err).
			Str("declaration_id", decl.ID).
			Msg("Stored declarations unavailable, submission not checked")
		return nil
	}

	for _, p := range pages {
		if propString(p.Properties, propEntity) != decl.Entity {
			continue
		}
		status := Status(propString(p.Properties, propStatus))
		if status == "" || status == StatusDraft {
			continue
		}
		e.log.Warn().
			Str("declaration_id", decl.ID).
			Str("store_id", p.ID).
			Str("status", string(status)).
			Msg("Declaration already submitted, submission refused")
		return NewDeclarationError(op, decl.ID, ErrInvalidTransition,
			fmt.Sprintf("declaration already %s (page %s)", status, p.ID))
	}
	return nil
}

func (e *Engine) persistDeclaration(ctx context.Context, decl *Declaration, controls []Control, now time.Time) error {
	if e.store == nil {
		return nil
	}

	props, err := declarationProperties(decl, controls, now)
	if err != nil {
		return err
	}

	if decl.StoreID != "" {
		return e.store.UpdatePage(ctx, store.DatabaseVATDeclarations, decl.StoreID, props)
	}
	id, err := e.store.SavePage(ctx, store.DatabaseVATDeclarations, props)
	if err != nil {
		return err
	}
	decl.StoreID = id
	decl.PersistenceError = ""
	return nil
}

// Archive archives a submitted declaration for the legal retention period.
func (e *Engine) Archive(ctx context.Context, year int, code string) (*Declaration, error) {
	const op = "Archive"

	e.mu.Lock()
	defer e.mu.Unlock()

	dc, err := e.contextLocked(op, year, code)
	if err != nil {
		return nil, err
	}

	archived, err := dc.Declaration.Archive(e.config.Clock())
	if err != nil {
		return nil, err
	}

	if err := e.persistArchive(ctx, archived); err != nil {
		if e.config.Policy == RollbackOnPersistFailure {
			e.log.Warn().
				Err(err).
				Str("declaration_id", archived.ID).
				Str("path", "rollback").
				Msg("Archive not persisted, declaration stays submitted")
			return nil, NewDeclarationError(op, archived.ID, ErrPersistenceFailure, err.Error())
		}
		archived.PersistenceError = err.Error()
		e.log.Warn().
			Err(err).
			Str("declaration_id", archived.ID).
			Str("path", "keep_local").
			Msg("Archive not persisted, kept archived locally")
	}

	dc.Declaration = archived
	e.history.Flush()

	e.log.Info().
		Str("declaration_id", archived.ID).
		Time("retention_until", *archived.RetentionUntil).
		Msg("Declaration archived")

	return archived.Clone(), nil
}

func (e *Engine) persistArchive(ctx context.Context, archived *Declaration) error {
	if e.store == nil {
		return nil
	}

	props, err := archiveProperties(archived)
	if err != nil {
		return err
	}

	// Mark the declaration before writing the archive copy; a failed copy
	// restores the submitted status.
	if archived.StoreID != "" {
		if err := e.setStoredStatus(ctx, archived.StoreID, StatusArchived); err != nil {
			return err
		}
	}
	if _, err := e.store.SavePage(ctx, store.DatabaseVATArchive, props); err != nil {
		if archived.StoreID != "" {
			if revertErr := e.setStoredStatus(ctx, archived.StoreID, StatusSubmitted); revertErr != nil {
				e.log.Error().
					Err(revertErr).
					Str("declaration_id", archived.ID).
					Str("store_id", archived.StoreID).
					Msg("Failed to restore submitted status after archive failure")
			}
		}
		return err
	}
	return nil
}

func (e *Engine) setStoredStatus(ctx context.Context, storeID string, status Status) error {
	return e.store.UpdatePage(ctx, store.DatabaseVATDeclarations, storeID, store.Properties{
		propStatus: string(status),
	})
}

// Export renders an opened declaration as AFC XML.
func (e *Engine) Export(year int, code string) ([]byte, error) {
	decl, err := e.Get(year, code)
	if err != nil {
		return nil, err
	}
	return decl.ExportAFC()
}

// CompareMethods compares the current declaration with flat rates; without
// a current declaration the effective liability is zero.
func (e *Engine) CompareMethods(revenue float64) MethodComparison {
	effective := 0.0
	if decl, err := e.Current(); err == nil {
		effective = decl.Result.VATToPay
	}
	return CompareMethods(effective, revenue)
}

// History lists stored declarations of year, or of every year when year is
// zero, most recent period first. Reads are cached; when the store is
// missing or fails, the declarations submitted in this process are listed.
func (e *Engine) History(ctx context.Context, year int) ([]HistoryEntry, error) {
	cacheKey := "history:" + strconv.Itoa(year)
	if cached, ok := e.history.Get(cacheKey); ok {
		return cached.([]HistoryEntry), nil
	}

	var entries []HistoryEntry
	if e.store != nil {
		filter := store.Filter{}
		if year != 0 {
			filter = store.Filter{Property: propPeriod, Contains: strconv.Itoa(year)}
		}
		pages, err := e.store.QueryPages(ctx, store.DatabaseVATDeclarations, filter,
			store.Sort{Property: propEndDate, Descending: true})
		if err == nil {
			entries = make([]HistoryEntry, 0, len(pages))
			for _, p := range pages {
				entries = append(entries, historyEntryFromPage(p))
			}
			e.history.Set(cacheKey, entries, cache.DefaultExpiration)
			return entries, nil
		}
		e.log.Warn().
			Err(err).
			Str("path", "local_history").
			Msg("Declaration history unavailable, using local declarations")
	}

	return e.localHistory(year), nil
}

func (e *Engine) localHistory(year int) []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := []HistoryEntry{}
	for key, dc := range e.contexts {
		if year != 0 && key.Year != year {
			continue
		}
		if dc.Declaration.Status == StatusDraft {
			continue
		}
		entries = append(entries, historyEntryFromDeclaration(dc.Declaration))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EndDate > entries[j].EndDate
	})
	return entries
}
