package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"docvat/pkg/models"
)

var entityPatterns = []struct {
	entity  models.Entity
	pattern *regexp.Regexp
}{
	{models.EntityHypervisual, regexp.MustCompile(`(?i)hypervisual|hyper.visual`)},
	{models.EntityDainamics, regexp.MustCompile(`(?i)dainamics|daina.mics`)},
	{models.EntityEnkiReality, regexp.MustCompile(`(?i)enki.reality|enki`)},
	{models.EntityTakeout, regexp.MustCompile(`(?i)takeout|take.out`)},
	{models.EntityLexaia, regexp.MustCompile(`(?i)lexaia|lexa.ia`)},
}

// DetectEntity returns the first entity whose pattern matches, or the
// primary entity.
func DetectEntity(text string) models.Entity {
	for _, e := range entityPatterns {
		if e.pattern.MatchString(text) {
			return e.entity
		}
	}
	return models.PrimaryEntity
}

var (
	dayFirstDate  = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)
	yearFirstDate = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
)

// ExtractDate tries D.M.Y then Y.M.D. Impossible calendar dates are skipped.
func ExtractDate(text string) (time.Time, bool) {
	for _, m := range dayFirstDate.FindAllStringSubmatch(text, -1) {
		if d, ok := buildDate(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	for _, m := range yearFirstDate.FindAllStringSubmatch(text, -1) {
		if d, ok := buildDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

var (
	labelledNumberPattern = regexp.MustCompile(`(?i)(?:\bfacture\b|\binvoice\b|\brechnung\b|\bn°|\bno\b\.?|\bnr\b\.?)[\s:]*([A-Z0-9\-/]*\d[A-Z0-9\-/]*)`)
	prefixedNumberPattern = regexp.MustCompile(`\b([A-Z]{2,4}[-_]?[0-9]{3,6})\b`)
)

// ExtractNumber returns the document number, or "" when none is found.
// Labelled tokens must contain a digit so that "Invoice To" is not read as
// a number.
func ExtractNumber(text string) string {
	if m := labelledNumberPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := prefixedNumberPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// AutoNumber is the synthetic document number used when none is found.
func AutoNumber(now time.Time) string {
	return fmt.Sprintf("AUTO-%d", now.UnixMilli())
}

var supplierLabelPattern = regexp.MustCompile(`(?i)facture|invoice|date|tva|total`)

const supplierScanLines = 5

// ExtractSupplier picks the first of the leading lines that is long enough
// and does not look like a label.
func ExtractSupplier(text string) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); utf8.RuneCountInString(l) > 3 {
			lines = append(lines, l)
		}
	}
	if len(lines) > supplierScanLines {
		lines = lines[:supplierScanLines]
	}

	for _, line := range lines {
		if utf8.RuneCountInString(line) > 5 && !supplierLabelPattern.MatchString(line) {
			return line
		}
	}
	return models.UnknownSupplier
}
