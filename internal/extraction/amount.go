package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// AmountKind selects which labelled amount to look for.
type AmountKind string

const (
	AmountNet   AmountKind = "HT"
	AmountVAT   AmountKind = "TVA"
	AmountGross AmountKind = "TTC"
)

// numberExpr accepts Swiss (1'081.00), European (1.081,00) and plain
// (1081.00, 1081,00) notations. Alternatives are tried left to right.
const numberExpr = `\d{1,3}(?:['’]\d{3})+(?:[.,]\d{1,2})?|\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d+)?`

var (
	amountLabels = map[AmountKind]*regexp.Regexp{
		AmountNet:   regexp.MustCompile(`(?i)(?:\bHT\b|hors.tva)[\s:]*(` + numberExpr + `)`),
		AmountVAT:   regexp.MustCompile(`(?i)(?:\bTVA\b|\bmwst\b)[\s:]*(` + numberExpr + `)`),
		AmountGross: regexp.MustCompile(`(?i)(?:\bTTC\b|\btotal\b)[\s:]*(` + numberExpr + `)`),
	}

	numberPattern            = regexp.MustCompile(numberExpr)
	europeanThousandsPattern = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

// ExtractAmount returns the first labelled amount of the given kind that is
// not a percentage. When the label is followed by a rate ("TVA 8.1%: 81.00"),
// the next amount on the same line is taken.
func ExtractAmount(text string, kind AmountKind) (float64, bool) {
	pattern, ok := amountLabels[kind]
	if !ok {
		return 0, false
	}

	for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if followedByPercent(text, end) {
			if v, ok := amountOnLine(text, end); ok {
				return v, true
			}
			continue
		}
		if v, ok := ParseAmount(text[start:end]); ok {
			return v, true
		}
	}
	return 0, false
}

// amountOnLine returns the first non-percentage amount between from and the
// end of its line.
func amountOnLine(text string, from int) (float64, bool) {
	line := text[from:]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	for _, m := range numberPattern.FindAllStringIndex(line, -1) {
		if followedByPercent(line, m[1]) {
			continue
		}
		if v, ok := ParseAmount(line[m[0]:m[1]]); ok {
			return v, true
		}
	}
	return 0, false
}

// LastAmount returns the last number-looking token that is not a percentage.
func LastAmount(text string) (float64, bool) {
	matches := numberPattern.FindAllStringIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		if followedByPercent(text, end) {
			continue
		}
		if v, ok := ParseAmount(text[start:end]); ok {
			return v, true
		}
	}
	return 0, false
}

// ParseAmount converts a formatted amount to a number. The right-most
// separator is the decimal mark, except for dotted thousand groups.
func ParseAmount(s string) (float64, bool) {
	s = strings.NewReplacer("'", "", "’", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if europeanThousandsPattern.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func followedByPercent(text string, end int) bool {
	rest := strings.TrimLeft(text[end:], " \t")
	return strings.HasPrefix(rest, "%")
}
