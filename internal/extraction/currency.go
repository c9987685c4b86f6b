package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"docvat/pkg/models"
)

// SwissNormalRate is assumed for CHF documents that include VAT without stating the rate.
const SwissNormalRate = 8.1

var currencyPatterns = []struct {
	code    string
	pattern *regexp.Regexp
}{
	{"EUR", regexp.MustCompile(`(?i)€|\bEUR\b|\beuros?\b`)},
	{"USD", regexp.MustCompile(`(?i)\$|\bUSD\b|\bdollars?\b`)},
	{"CHF", regexp.MustCompile(`(?i)\bCHF|francs?\s+suisses?`)},
	{"GBP", regexp.MustCompile(`(?i)£|\bGBP\b|\bpounds?\b`)},
}

var (
	// Bare "HT" and "net" do not mark exclusion: VAT-inclusive invoices
	// label their net line the same way.
	horsTVAPattern       = regexp.MustCompile(`(?i)hors\s+tva|hors\s+taxes?|excluding\s+vat|sans\s+tva|excl\.?\s*vat|\bhtva\b`)
	nonApplicablePattern = regexp.MustCompile(`(?i)non\s+applicable|\bn/a\b|\bexempt|exonéré`)
	vatRatePattern       = regexp.MustCompile(`(?i)(?:tva|vat|mwst)\s*:?\s*(\d+(?:[.,]\d+)?)\s*%`)
	anyPercentPattern    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
)

// CurrencyVAT groups the currency, status and rate detected in a text.
type CurrencyVAT struct {
	Currency string
	Status   models.VATStatus
	Rate     float64
}

// DetectCurrencyAndVAT picks the currency with strictly the most mentions
// (CHF on a tie or when none is found), infers the VAT status and extracts a
// rate. Exempt statuses always carry a zero rate.
func DetectCurrencyAndVAT(text string) CurrencyVAT {
	result := CurrencyVAT{
		Currency: DetectCurrency(text),
		Status:   DetectVATStatus(text),
	}

	if m := vatRatePattern.FindStringSubmatch(text); m != nil {
		result.Rate = parseRate(m[1])
	} else if result.Status == models.VATIncluded && result.Currency == models.DefaultCurrency {
		result.Rate = SwissNormalRate
	}

	if result.Status.Exempt() {
		result.Rate = 0
	}
	return result
}

// DetectCurrency counts currency markers.
func DetectCurrency(text string) string {
	best := models.DefaultCurrency
	bestCount := 0
	tie := false

	for _, c := range currencyPatterns {
		n := len(c.pattern.FindAllStringIndex(text, -1))
		switch {
		case n > bestCount:
			best, bestCount, tie = c.code, n, false
		case n == bestCount && n > 0:
			tie = true
		}
	}

	if bestCount == 0 || tie {
		return models.DefaultCurrency
	}
	return best
}

// DetectVATStatus tests hors_tva first, then non_applicable, else ttc.
func DetectVATStatus(text string) models.VATStatus {
	switch {
	case horsTVAPattern.MatchString(text):
		return models.VATExcluded
	case nonApplicablePattern.MatchString(text):
		return models.VATNotApplicable
	default:
		return models.VATIncluded
	}
}

// ExtractVATRate returns the first percentage in the text snapped to the
// closest Swiss rate, or the normal rate when no percentage is present.
func ExtractVATRate(text string) float64 {
	m := anyPercentPattern.FindStringSubmatch(text)
	if m == nil {
		return SwissNormalRate
	}
	return SnapSwissRate(parseRate(m[1]))
}

// SnapSwissRate maps a rate near a Swiss rate onto it: 7-9 to 8.1, 2-3 to
// 2.6 and 3.5-4 to 3.8. Other values are returned unchanged.
func SnapSwissRate(rate float64) float64 {
	switch {
	case rate >= 7 && rate <= 9:
		return 8.1
	case rate >= 2 && rate <= 3:
		return 2.6
	case rate >= 3.5 && rate <= 4:
		return 3.8
	}
	return rate
}

func parseRate(s string) float64 {
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return f
}
