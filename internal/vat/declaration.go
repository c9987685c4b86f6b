package vat

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusArchived  Status = "archived"
)

type Method string

const (
	MethodEffective Method = "effective"
	MethodForfait   Method = "forfait"
)

type Section string

const (
	SectionCollected  Section = "collected"
	SectionDeductible Section = "deductible"
)

type Category string

const (
	CategoryNormalRate  Category = "normalRate"
	CategoryReducedRate Category = "reducedRate"
	CategoryLodgingRate Category = "lodgingRate"
	CategoryGoods       Category = "goods"
	CategoryServices    Category = "services"
	CategoryInvestments Category = "investments"
	// CategoryCorrections takes the signed VATAmount as the correction term.
	CategoryCorrections Category = "corrections"
)

// RetentionYears is how long archived declarations are kept.
const RetentionYears = 10

const (
	collectedTolerance = 0.01
	rateTolerance      = 0.05
	// monthlyThreshold is the annual revenue above which monthly
	// declarations are recommended.
	monthlyThreshold = 5_000_000
)

// Amounts is the input of Update. VATAmount is ignored for collected
// categories, where VAT is derived from the net amount.
type Amounts struct {
	NetAmount float64 `json:"netAmount"`
	VATAmount float64 `json:"vatAmount"`
}

type RateLine struct {
	NetAmount float64 `json:"netAmount"`
	Rate      float64 `json:"rate"`
	VATAmount float64 `json:"vatAmount"`
}

type DeductibleLine struct {
	NetAmount float64 `json:"netAmount"`
	VATAmount float64 `json:"vatAmount"`
}

type Collected struct {
	NormalRate     RateLine `json:"normalRate"`
	ReducedRate    RateLine `json:"reducedRate"`
	LodgingRate    RateLine `json:"lodgingRate"`
	TotalCollected float64  `json:"totalCollected"`
}

type Deductible struct {
	Goods           DeductibleLine `json:"goods"`
	Services        DeductibleLine `json:"services"`
	Investments     DeductibleLine `json:"investments"`
	Corrections     float64        `json:"corrections"`
	TotalDeductible float64        `json:"totalDeductible"`
}

type Result struct {
	VATToPay         float64    `json:"vatToPay"`
	VATToRecover     float64    `json:"vatToRecover"`
	PaymentStatus    string     `json:"paymentStatus"`
	PaymentDate      *time.Time `json:"paymentDate,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`
}

// Declaration is one AFC VAT declaration for an entity and period.
type Declaration struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	VATNumber string `json:"vatNumber"`
	Period    Period `json:"period"`
	Method    Method `json:"method"`

	Collected  Collected  `json:"collected"`
	Deductible Deductible `json:"deductible"`
	Result     Result     `json:"result"`

	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastModified time.Time  `json:"lastModified"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	SubmittedBy  string     `json:"submittedBy,omitempty"`

	StoreID          string `json:"storeId,omitempty"`
	PersistenceError string `json:"persistenceError,omitempty"`

	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
	RetentionUntil *time.Time `json:"retentionUntil,omitempty"`
}

// Params describes a new declaration.
type Params struct {
	Entity    string
	VATNumber string
	Period    Period
	Method    Method
	CreatedAt time.Time
}

// DeclarationID returns TVA-<year>-<code>.
func DeclarationID(year int, code string) string {
	return fmt.Sprintf("TVA-%d-%s", year, code)
}

// NewDeclaration returns an empty draft.
func NewDeclaration(p Params) *Declaration {
	if p.Method == "" {
		p.Method = MethodEffective
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return &Declaration{
		ID:        DeclarationID(p.Period.Year, p.Period.Code),
		Entity:    p.Entity,
		VATNumber: p.VATNumber,
		Period:    p.Period,
		Method:    p.Method,
		Collected: Collected{
			NormalRate:  RateLine{Rate: RateNormal.Percent},
			ReducedRate: RateLine{Rate: RateReduced.Percent},
			LodgingRate: RateLine{Rate: RateLodging.Percent},
		},
		Result:       Result{PaymentStatus: "pending"},
		Status:       StatusDraft,
		CreatedAt:    p.CreatedAt,
		LastModified: p.CreatedAt,
	}
}

// Clone returns a deep copy.
func (d *Declaration) Clone() *Declaration {
	c := *d
	c.Period.Months = append([]int(nil), d.Period.Months...)
	c.Result.PaymentDate = cloneTime(d.Result.PaymentDate)
	c.SubmittedAt = cloneTime(d.SubmittedAt)
	c.ArchivedAt = cloneTime(d.ArchivedAt)
	c.RetentionUntil = cloneTime(d.RetentionUntil)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Update sets one line of the form and recomputes the totals. Collected VAT
// is always derived at the category's fixed rate.
func (d *Declaration) Update(section Section, category Category, amounts Amounts, now time.Time) error {
	const op = "Update"

	if d.Status != StatusDraft {
		return NewDeclarationError(op, d.ID, ErrDeclarationLocked, string(d.Status))
	}

	switch section {
	case SectionCollected:
		line := d.collectedLine(category)
		if line == nil {
			return NewDeclarationError(op, d.ID, ErrUnknownCategory, fmt.Sprintf("%s/%s", section, category))
		}
		line.NetAmount = amounts.NetAmount
		line.VATAmount = CalculateVAT(amounts.NetAmount, line.Rate)
	case SectionDeductible:
		if category == CategoryCorrections {
			d.Deductible.Corrections = amounts.VATAmount
			break
		}
		line := d.deductibleLine(category)
		if line == nil {
			return NewDeclarationError(op, d.ID, ErrUnknownCategory, fmt.Sprintf("%s/%s", section, category))
		}
		line.NetAmount = amounts.NetAmount
		line.VATAmount = amounts.VATAmount
	default:
		return NewDeclarationError(op, d.ID, ErrUnknownCategory, fmt.Sprintf("section %q", section))
	}

	d.CalculateTotals()
	d.LastModified = now
	return nil
}

func (d *Declaration) collectedLine(category Category) *RateLine {
	switch category {
	case CategoryNormalRate:
		return &d.Collected.NormalRate
	case CategoryReducedRate:
		return &d.Collected.ReducedRate
	case CategoryLodgingRate:
		return &d.Collected.LodgingRate
	}
	return nil
}

func (d *Declaration) deductibleLine(category Category) *DeductibleLine {
	switch category {
	case CategoryGoods:
		return &d.Deductible.Goods
	case CategoryServices:
		return &d.Deductible.Services
	case CategoryInvestments:
		return &d.Deductible.Investments
	}
	return nil
}

// CalculateTotals recomputes totals and the result. It only writes the
// total and result fields and is idempotent.
func (d *Declaration) CalculateTotals() {
	d.Collected.TotalCollected = sum(
		d.Collected.NormalRate.VATAmount,
		d.Collected.ReducedRate.VATAmount,
		d.Collected.LodgingRate.VATAmount,
	)
	d.Deductible.TotalDeductible = sum(
		d.Deductible.Goods.VATAmount,
		d.Deductible.Services.VATAmount,
		d.Deductible.Investments.VATAmount,
		d.Deductible.Corrections,
	)

	balance := sum(d.Collected.TotalCollected, -d.Deductible.TotalDeductible)
	if balance > 0 {
		d.Result.VATToPay = balance
		d.Result.VATToRecover = 0
	} else {
		d.Result.VATToPay = 0
		d.Result.VATToRecover = math.Abs(balance)
	}
}

// Revenue is the taxable net revenue over the three rates.
func (d *Declaration) Revenue() float64 {
	return sum(
		d.Collected.NormalRate.NetAmount,
		d.Collected.ReducedRate.NetAmount,
		d.Collected.LodgingRate.NetAmount,
	)
}

type ControlStatus string

const (
	ControlSuccess ControlStatus = "success"
	ControlWarning ControlStatus = "warning"
	ControlError   ControlStatus = "error"
)

// Control is the outcome of one coherence check.
type Control struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ControlStatus `json:"status"`
	Message     string        `json:"message"`
}

// HasErrors reports whether any control blocks submission.
func HasErrors(controls []Control) bool {
	for _, c := range controls {
		if c.Status == ControlError {
			return true
		}
	}
	return false
}

// RunCoherenceControls evaluates the pre-submission checks. Only the totals
// check can report an error.
func (d *Declaration) RunCoherenceControls() []Control {
	controls := make([]Control, 0, 3)

	expectedTotal := sum(
		d.Collected.NormalRate.VATAmount,
		d.Collected.ReducedRate.VATAmount,
		d.Collected.LodgingRate.VATAmount,
	)
	totals := Control{
		Name:        "Cohérence des totaux",
		Description: "TVA collectée = Somme des TVA par taux",
		Status:      ControlSuccess,
		Message:     "Validé",
	}
	if math.Abs(d.Collected.TotalCollected-expectedTotal) >= collectedTolerance {
		totals.Status = ControlError
		totals.Message = "Erreur de calcul détectée"
	}
	controls = append(controls, totals)

	rates := Control{
		Name:        "Vérification des taux",
		Description: "TVA = Montant HT × Taux (tolérance 0.05 CHF)",
		Status:      ControlSuccess,
		Message:     "Validé",
	}
	for _, line := range []RateLine{d.Collected.NormalRate, d.Collected.ReducedRate, d.Collected.LodgingRate} {
		if math.Abs(CalculateVAT(line.NetAmount, line.Rate)-line.VATAmount) > rateTolerance {
			rates.Status = ControlWarning
			rates.Message = "Écart détecté dans les calculs"
		}
	}
	controls = append(controls, rates)

	limits := Control{
		Name:        "Vérification des limites",
		Description: "Contrôle des seuils de chiffre d'affaires",
		Status:      ControlSuccess,
		Message:     "Déclaration trimestrielle OK",
	}
	if d.Period.Type == PeriodMonthly {
		limits.Message = "Déclaration mensuelle OK"
	} else if d.Revenue()*4 > monthlyThreshold {
		limits.Status = ControlWarning
		limits.Message = "CA > 5M CHF → Déclaration mensuelle recommandée"
	}
	controls = append(controls, limits)

	return controls
}

// Submit moves a draft to submitted after the coherence controls pass.
// It stamps the submission and the payment reference; persistence is the
// caller's concern.
func (d *Declaration) Submit(by string, now time.Time) ([]Control, error) {
	const op = "Submit"

	if d.Status != StatusDraft {
		return nil, NewDeclarationError(op, d.ID, ErrInvalidTransition, fmt.Sprintf("%s → %s", d.Status, StatusSubmitted))
	}

	controls := d.RunCoherenceControls()
	if HasErrors(controls) {
		err := NewDeclarationError(op, d.ID, ErrCoherenceFailed, "")
		err.Controls = controls
		return controls, err
	}

	submittedAt := now
	d.Status = StatusSubmitted
	d.SubmittedAt = &submittedAt
	d.SubmittedBy = by
	d.Result.PaymentReference = PaymentReference(d.ID, now)
	d.LastModified = now
	return controls, nil
}

// PaymentReference returns <id>-<unix milliseconds in upper-case base 36>.
func PaymentReference(id string, now time.Time) string {
	return id + "-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}

// Archive returns an archived copy of a submitted declaration, retained for
// ten years. Amounts are never changed.
func (d *Declaration) Archive(now time.Time) (*Declaration, error) {
	const op = "Archive"

	if d.Status != StatusSubmitted {
		return nil, NewDeclarationError(op, d.ID, ErrInvalidTransition, fmt.Sprintf("%s → %s", d.Status, StatusArchived))
	}

	archived := d.Clone()
	archivedAt := now
	retention := now.AddDate(RetentionYears, 0, 0)
	archived.Status = StatusArchived
	archived.ArchivedAt = &archivedAt
	archived.RetentionUntil = &retention
	return archived, nil
}

// RubriqueDetail maps AFC rubrique codes to the declaration amounts.
func (d *Declaration) RubriqueDetail() map[string]float64 {
	return map[string]float64{
		"200": d.Revenue(),
		"302": d.Collected.NormalRate.NetAmount,
		"303": d.Collected.NormalRate.VATAmount,
		"312": d.Collected.ReducedRate.NetAmount,
		"313": d.Collected.ReducedRate.VATAmount,
		"342": d.Collected.LodgingRate.NetAmount,
		"343": d.Collected.LodgingRate.VATAmount,
		"399": d.Collected.TotalCollected,
		"400": d.Deductible.Goods.VATAmount,
		"405": d.Deductible.Services.VATAmount,
		"410": d.Deductible.Investments.VATAmount,
		"415": d.Deductible.Corrections,
		"479": d.Deductible.TotalDeductible,
		"500": d.Result.VATToPay,
		"510": d.Result.VATToRecover,
	}
}

// RateDetail maps rate labels ("8.1%") to collected VAT.
func (d *Declaration) RateDetail() map[string]float64 {
	return map[string]float64{
		"8.1%": d.Collected.NormalRate.VATAmount,
		"2.6%": d.Collected.ReducedRate.VATAmount,
		"3.8%": d.Collected.LodgingRate.VATAmount,
	}
}

// FlatRateResult is the liability under one flat rate.
type FlatRateResult struct {
	BusinessType string  `json:"business_type"`
	Percent      float64 `json:"percent"`
	Amount       float64 `json:"amount"`
}

// MethodComparison compares the effective result with flat rates.
type MethodComparison struct {
	Revenue        float64          `json:"revenue"`
	Effective      float64          `json:"effective"`
	Forfait        []FlatRateResult `json:"forfait"`
	Best           FlatRateResult   `json:"best_forfait"`
	Recommendation Method           `json:"recommendation"`
}

// CompareMethods computes the flat-rate liability of an annual revenue per
// business type against effective, the VAT to pay under the effective
// method. Effective is recommended only when strictly cheaper than every
// flat rate.
func CompareMethods(effective, revenue float64) MethodComparison {
	cmp := MethodComparison{
		Revenue:   revenue,
		Effective: effective,
		Forfait:   make([]FlatRateResult, 0, len(FlatRates)),
	}

	for i, fr := range FlatRates {
		result := FlatRateResult{
			BusinessType: fr.BusinessType,
			Percent:      fr.Percent,
			Amount:       CalculateVAT(revenue, fr.Percent),
		}
		cmp.Forfait = append(cmp.Forfait, result)
		if i == 0 || result.Amount < cmp.Best.Amount {
			cmp.Best = result
		}
	}

	cmp.Recommendation = MethodForfait
	if effective < cmp.Best.Amount {
		cmp.Recommendation = MethodEffective
	}
	return cmp
}

// CompareMethods compares this declaration's VAT to pay with flat rates.
func (d *Declaration) CompareMethods(revenue float64) MethodComparison {
	return CompareMethods(d.Result.VATToPay, revenue)
}
