package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"docvat/internal/logger"
	"docvat/pkg/models"
)

// AmountTolerance is the accepted gap between HT+TVA and TTC.
const AmountTolerance = 0.02

const (
	scoreClean    = 1.0
	scoreWarnings = 0.8
	scoreErrors   = 0.6
)

// SupportedCurrencies lists the currencies a record may carry.
var SupportedCurrencies = []string{"CHF", "EUR", "USD", "GBP", "CAD"}

var swissRates = []float64{0, 2.6, 3.8, 8.1}

const (
	euMinRate = 5.0
	euMaxRate = 27.0
)

// rule inspects a record and appends issues to the report.
type rule func(r models.ExtractionRecord, now time.Time, report *models.ValidationReport)

var rules = []rule{
	checkAmounts,
	checkExemptVAT,
	checkRate,
	checkCurrency,
	checkFutureDate,
}

// Validator runs the rule set. The zero value is not usable; call New.
type Validator struct {
	now func() time.Time
	log zerolog.Logger
}

// New returns a Validator using clock for the future-date rule.
func New(clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	return &Validator{now: clock, log: logger.WithComponent("validation")}
}

// Validate checks r without changing it.
func (v *Validator) Validate(r models.ExtractionRecord) models.ValidationReport {
	report := Validate(r, v.now())
	v.log.Debug().
		Bool("valid", report.Valid).
		Int("errors", len(report.Errors)).
		Int("warnings", len(report.Warnings)).
		Str("currency", r.Currency).
		Str("vat_status", string(r.VATStatus)).
		Msg("Record validated")
	return report
}

// ValidateAndNormalize validates r and applies the suggested TTC fix.
// The report still lists the corrected inconsistency.
func (v *Validator) ValidateAndNormalize(r models.ExtractionRecord) (models.ExtractionRecord, models.ValidationReport) {
	normalized, report := ValidateAndNormalize(r, v.now())
	if normalized.Amounts.GrossTTC != r.Amounts.GrossTTC {
		v.log.Info().
			Float64("gross_before", r.Amounts.GrossTTC).
			Float64("gross_after", normalized.Amounts.GrossTTC).
			Msg("Gross amount corrected from net and VAT")
	}
	return normalized, report
}

// Validate evaluates every rule against r as of now.
func Validate(r models.ExtractionRecord, now time.Time) models.ValidationReport {
	report := models.ValidationReport{
		Errors:   []models.Issue{},
		Warnings: []models.Issue{},
	}
	for _, check := range rules {
		check(r, now, &report)
	}

	report.Valid = len(report.Errors) == 0
	switch {
	case len(report.Errors) > 0:
		report.Score = scoreErrors
	case len(report.Warnings) > 0:
		report.Score = scoreWarnings
	default:
		report.Score = scoreClean
	}
	return report
}

// ValidateAndNormalize validates r and replaces GrossTTC with the
// suggested fix of the amount rule, if any.
func ValidateAndNormalize(r models.ExtractionRecord, now time.Time) (models.ExtractionRecord, models.ValidationReport) {
	report := Validate(r, now)
	for _, issue := range report.Errors {
		if issue.Field == "montant_ttc" && issue.SuggestedFix != nil {
			r.Amounts.GrossTTC = *issue.SuggestedFix
		}
	}
	return r, report
}

func checkAmounts(r models.ExtractionRecord, _ time.Time, report *models.ValidationReport) {
	if r.VATStatus != models.VATIncluded || r.Amounts.NetHT == nil || r.Amounts.VAT == nil || r.Amounts.GrossTTC == 0 {
		return
	}

	net, vat, gross := *r.Amounts.NetHT, *r.Amounts.VAT, r.Amounts.GrossTTC
	computed := net + vat
	if math.Abs(computed-gross) <= AmountTolerance+1e-9 {
		return
	}

	report.Errors = append(report.Errors, models.Issue{
		Field:        "montant_ttc",
		Message:      fmt.Sprintf("Incohérence: HT(%.2f) + TVA(%.2f) ≠ TTC(%.2f)", net, vat, gross),
		SuggestedFix: models.Float(math.Round(computed*100) / 100),
	})
}

func checkExemptVAT(r models.ExtractionRecord, _ time.Time, report *models.ValidationReport) {
	if r.VATStatus == models.VATExcluded && models.Value(r.Amounts.VAT) > 0 {
		report.Warnings = append(report.Warnings, models.Issue{
			Field:   "montant_tva",
			Message: `Montant TVA présent mais statut "hors_tva"`,
		})
	}
}

func checkRate(r models.ExtractionRecord, _ time.Time, report *models.ValidationReport) {
	if r.VATRate == 0 {
		return
	}

	switch r.Currency {
	case "CHF":
		for _, rate := range swissRates {
			if math.Abs(rate-r.VATRate) < 1e-9 {
				return
			}
		}
		report.Warnings = append(report.Warnings, models.Issue{
			Field:   "taux_tva",
			Message: fmt.Sprintf("Taux TVA inhabituel pour CHF: %g%% (attendu: 0%%, 2.6%%, 3.8%%, 8.1%%)", r.VATRate),
		})
	case "EUR":
		if r.VATRate < euMinRate || r.VATRate > euMaxRate {
			report.Warnings = append(report.Warnings, models.Issue{
				Field:   "taux_tva",
				Message: fmt.Sprintf("Taux TVA inhabituel pour EUR: %g%% (Europe: 5%% à 27%%)", r.VATRate),
			})
		}
	}
}

func checkCurrency(r models.ExtractionRecord, _ time.Time, report *models.ValidationReport) {
	for _, c := range SupportedCurrencies {
		if r.Currency == c {
			return
		}
	}
	report.Errors = append(report.Errors, models.Issue{
		Field:   "devise",
		Message: fmt.Sprintf("Devise non supportée: %s", r.Currency),
	})
}

func checkFutureDate(r models.ExtractionRecord, now time.Time, report *models.ValidationReport) {
	if !r.IssueDate.IsZero() && r.IssueDate.After(now) {
		report.Warnings = append(report.Warnings, models.Issue{
			Field:   "date",
			Message: "Date future détectée",
		})
	}
}
