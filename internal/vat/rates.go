// Package vat prepares Swiss VAT declarations (AFC form, effective method):
// rate and rubrique tables, the period calendar, the declaration lifecycle
// draft → submitted → archived, coherence controls, the AFC XML export and
// the comparison with flat-rate methods.
package vat

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rate is a Swiss VAT rate in percent.
type Rate struct {
	Code    string  `json:"code"`
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
}

var (
	RateNormal  = Rate{Code: "normal", Percent: 8.1, Label: "Taux normal"}
	RateReduced = Rate{Code: "reduced", Percent: 2.6, Label: "Taux réduit"}
	RateLodging = Rate{Code: "lodging", Percent: 3.8, Label: "Hébergement"}
)

// Rates lists the rates in form order.
var Rates = []Rate{RateNormal, RateReduced, RateLodging}

// Rubrique is a line of the AFC declaration form.
type Rubrique struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Rubriques lists the AFC form lines in form order.
var Rubriques = []Rubrique{
	{"200", "Chiffre d'affaires total"},
	{"205", "Prestations non imposables"},
	{"220", "Prestations exonérées"},
	{"302", "Chiffre d'affaires imposé au taux normal"},
	{"303", "TVA due au taux normal"},
	{"312", "Chiffre d'affaires imposé au taux réduit"},
	{"313", "TVA due au taux réduit"},
	{"342", "Chiffre d'affaires imposé au taux hébergement"},
	{"343", "TVA due au taux hébergement"},
	{"399", "Total TVA due"},
	{"400", "Impôt préalable sur marchandises"},
	{"405", "Impôt préalable sur prestations"},
	{"410", "Impôt préalable sur investissements"},
	{"415", "Corrections impôt préalable"},
	{"479", "Total impôt préalable"},
	{"500", "Montant à payer"},
	{"510", "Crédit à reporter"},
}

// RubriqueLabel returns the label of code, or "" if unknown.
func RubriqueLabel(code string) string {
	for _, r := range Rubriques {
		if r.Code == code {
			return r.Label
		}
	}
	return ""
}

// FlatRate is a net tax rate ("taux de la dette fiscale nette") by
// business type.
type FlatRate struct {
	BusinessType string  `json:"business_type"`
	Percent      float64 `json:"percent"`
}

var FlatRates = []FlatRate{
	{"services", 6.2},
	{"retail", 4.2},
	{"hospitality", 5.2},
	{"construction", 3.5},
}

// CalculateVAT returns amount × percent / 100 rounded half away from zero
// to the centime.
func CalculateVAT(amount, percent float64) float64 {
	return decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// sum adds amounts without binary floating-point drift.
func sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

// FormatAmount renders v with exactly two decimals.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatSwissAmount renders v with two decimals and apostrophe thousand
// separators, e.g. 1'234.50.
func FormatSwissAmount(v float64) string {
	fixed := FormatAmount(v)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('\'')
		}
		b.WriteRune(digit)
	}
	return sign + b.String() + "." + frac
}
