package extraction

import (
	"regexp"
	"strings"

	"docvat/pkg/models"
)

// emitterMarkers identify lines that belong to the issuing company block.
var emitterMarkers = []string{"Fribourg", "1700", "HMF Corporation", "HYPERVISUAL"}

var (
	documentHeaderPattern = regexp.MustCompile(`(?i)^(?:Offer|Invoice|Facture|Devis|Quote)\s+[A-Z0-9-]+`)
	documentHeaderMarkers = []string{"Date:", "N°", "No."}

	// corporatePatterns are tried in rank order; a capture group, when
	// present, holds the name.
	corporatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[A-Z][A-Z\s&.\-]{4,}(?:S\.?L\.?|SRL|SA|SARL|LLC|LTD|GmbH|AG|SAS|Inc|Corp)\.?$`),
		regexp.MustCompile(`^[A-Z][A-Z\s&.\-]{6,}$`),
		regexp.MustCompile(`(?i)(?:Client|Destinataire|To|Bill\s+to)[\s:]*(.+)`),
	}
)

type country struct {
	name     string
	synonyms []string // matched case-insensitively as substrings
	codes    []string // ISO codes, matched as whole upper-case tokens
}

var countries = []country{
	{"Switzerland", []string{"switzerland", "suisse", "schweiz", "svizzera"}, []string{"CH"}},
	{"Spain", []string{"spain", "españa", "espagne"}, []string{"ES"}},
	{"France", []string{"france"}, []string{"FR"}},
	{"Germany", []string{"germany", "deutschland", "allemagne"}, []string{"DE"}},
	{"Italy", []string{"italy", "italia", "italie"}, []string{"IT"}},
	{"USA", []string{"usa", "united states", "america"}, []string{"US"}},
	{"Canada", []string{"canada"}, []string{"CA"}},
	{"United Kingdom", []string{"united kingdom", "england"}, []string{"UK", "GB"}},
	{"Belgium", []string{"belgium", "belgique", "belgië"}, []string{"BE"}},
	{"Netherlands", []string{"netherlands", "nederland", "pays-bas"}, []string{"NL"}},
}

var tokenPattern = regexp.MustCompile(`[A-Za-z]+`)

// ExtractClient isolates the recipient block between the emitter block and
// the document header, then picks the most corporate-looking line as the
// client name. The remaining block lines form the address.
func ExtractClient(text string) models.Client {
	lines := nonEmptyLines(text)

	emitterEnd := -1
	for i, line := range lines {
		if containsAny(line, emitterMarkers) {
			emitterEnd = i
		}
	}

	headerStart := len(lines)
	for i := emitterEnd + 1; i < len(lines); i++ {
		if documentHeaderPattern.MatchString(lines[i]) || containsAny(lines[i], documentHeaderMarkers) {
			headerStart = i
			break
		}
	}

	block := lines[emitterEnd+1 : headerStart]
	name := clientName(block)

	var addressLines []string
	for _, line := range block {
		if line != name {
			addressLines = append(addressLines, line)
		}
	}
	address := strings.Join(addressLines, ", ")

	return models.Client{
		Name:    strings.TrimSpace(name),
		Address: strings.TrimSpace(address),
		Country: DetectCountry(address),
	}
}

func clientName(block []string) string {
	for _, pattern := range corporatePatterns {
		for _, line := range block {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if len(m) > 1 && m[1] != "" {
				return m[1]
			}
			return m[0]
		}
	}
	if len(block) > 0 {
		return block[0]
	}
	return ""
}

// DetectCountry returns the first country of the table mentioned in the
// address, or "" when none is.
func DetectCountry(address string) string {
	lower := strings.ToLower(address)
	tokens := map[string]bool{}
	for _, t := range tokenPattern.FindAllString(address, -1) {
		tokens[t] = true
	}

	for _, c := range countries {
		for _, s := range c.synonyms {
			if strings.Contains(lower, s) {
				return c.name
			}
		}
		for _, code := range c.codes {
			if tokens[code] {
				return c.name
			}
		}
	}
	return ""
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
