package extraction

import (
	"sort"
	"strings"
	"unicode/utf8"

	"docvat/pkg/models"
)

const (
	indicatorPoints = 10

	// lowScoreFloor is the winning score under which the guess is reported
	// with a flat 0.5 confidence.
	lowScoreFloor        = 20
	lowScoreConfidence   = 0.5
	alternativeMinScore  = 10
	maxAlternatives      = 2
	shortReceiptMaxRunes = 500
)

// classifyInput is what indicators may look at.
type classifyInput struct {
	text   string
	lower  string
	entity models.Entity
	client string
}

func (in classifyInput) has(fragments ...string) bool {
	for _, f := range fragments {
		if strings.Contains(in.text, f) {
			return true
		}
	}
	return false
}

type indicator func(in classifyInput) bool

type candidate struct {
	docType    models.DocumentType
	weight     int
	keywords   []string
	indicators []indicator
}

// candidates are scored in declaration order; ties go to the earlier entry.
var candidates = []candidate{
	{
		docType:  models.DocClientInvoice,
		weight:   30,
		keywords: []string{"facture", "invoice", "rechnung", "bill"},
		indicators: []indicator{
			func(in classifyInput) bool { return in.has("facturé à", "bill to", "rechnung an") },
			func(in classifyInput) bool { return strings.Contains(string(in.entity), "hypervisual") },
			func(in classifyInput) bool {
				return in.client != "" && !strings.Contains(strings.ToLower(in.client), "hypervisual")
			},
			func(in classifyInput) bool { return in.has("échéance", "due date") },
			func(in classifyInput) bool { return in.has("conditions de paiement", "payment terms") },
		},
	},
	{
		docType:  models.DocSupplierInvoice,
		weight:   25,
		keywords: []string{"facture", "invoice", "bill", "receipt"},
		indicators: []indicator{
			func(in classifyInput) bool { return !strings.Contains(string(in.entity), "hypervisual") },
			func(in classifyInput) bool { return strings.Contains(strings.ToLower(in.client), "hypervisual") },
			func(in classifyInput) bool { return in.has("payment due", "à payer") },
			func(in classifyInput) bool { return in.has("remit to", "payer à") },
		},
	},
	{
		docType:  models.DocQuote,
		weight:   35,
		keywords: []string{"devis", "quote", "quotation", "offer", "proposal", "offre"},
		indicators: []indicator{
			func(in classifyInput) bool { return in.has("valable jusqu", "valid until", "expires") },
			func(in classifyInput) bool { return in.has("estimation", "estimated") },
			func(in classifyInput) bool { return in.has("proposition", "proposed") },
			func(in classifyInput) bool { return !in.has("payment", "paiement") },
			func(in classifyInput) bool { return in.has("acceptance", "acceptation") },
		},
	},
	{
		docType:  models.DocExpenseNote,
		weight:   20,
		keywords: []string{"expense", "frais", "spesen", "reimbursement", "remboursement"},
		indicators: []indicator{
			func(in classifyInput) bool { return in.has("expense report", "note de frais") },
			func(in classifyInput) bool { return in.has("reimbursement", "remboursement") },
			func(in classifyInput) bool { return in.has("per diem", "indemnité") },
			func(in classifyInput) bool { return in.has("mileage", "kilométrage") },
		},
	},
	{
		docType:  models.DocCardReceipt,
		weight:   15,
		keywords: []string{"ticket", "reçu", "receipt", "terminal"},
		indicators: []indicator{
			func(in classifyInput) bool { return in.has("carte", "card") },
			func(in classifyInput) bool { return in.has("terminal", "pos") },
			func(in classifyInput) bool { return in.has("mastercard", "visa") },
			func(in classifyInput) bool { return utf8.RuneCountInString(in.text) < shortReceiptMaxRunes },
		},
	},
}

// Classification is the outcome of the document-type contest.
type Classification struct {
	Best         models.TypeScore
	Alternatives []models.TypeScore
	Scores       []models.TypeScore
}

// ClassifyDocument scores every candidate type against the text. Keywords are
// matched case-insensitively and add the candidate weight each; indicators
// add 10 points each.
func ClassifyDocument(text string, entity models.Entity, client string) Classification {
	in := classifyInput{
		text:   text,
		lower:  strings.ToLower(text),
		entity: entity,
		client: client,
	}

	scores := make([]models.TypeScore, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, c.score(in))
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	if best.Score < lowScoreFloor {
		best.Confidence = lowScoreConfidence
	}

	var alternatives []models.TypeScore
	for _, s := range scores {
		if s.Type != best.Type && s.Score > alternativeMinScore {
			alternatives = append(alternatives, s)
		}
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Score > alternatives[j].Score
	})
	if len(alternatives) > maxAlternatives {
		alternatives = alternatives[:maxAlternatives]
	}

	return Classification{Best: best, Alternatives: alternatives, Scores: scores}
}

func (c candidate) score(in classifyInput) models.TypeScore {
	result := models.TypeScore{Type: c.docType}

	for _, k := range c.keywords {
		if strings.Contains(in.lower, k) {
			result.MatchedKeywords++
		}
	}
	for _, ind := range c.indicators {
		if ind(in) {
			result.MatchedIndicators++
		}
	}

	result.Score = result.MatchedKeywords*c.weight + result.MatchedIndicators*indicatorPoints

	maxPossible := c.weight + len(c.indicators)*indicatorPoints
	result.Confidence = float64(result.Score) / float64(maxPossible)
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result
}
