package models

import "time"

type DocumentType string

const (
	DocClientInvoice   DocumentType = "facture_client"
	DocSupplierInvoice DocumentType = "facture_fournisseur"
	DocQuote           DocumentType = "devis"
	DocExpenseNote     DocumentType = "note_frais"
	DocCardReceipt     DocumentType = "ticket_cb"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocClientInvoice, DocSupplierInvoice, DocQuote, DocExpenseNote, DocCardReceipt:
		return true
	}
	return false
}

type VATStatus string

const (
	VATExcluded      VATStatus = "hors_tva"
	VATIncluded      VATStatus = "ttc"
	VATNotApplicable VATStatus = "non_applicable"
)

// Exempt is true for statuses that carry no VAT at all.
func (s VATStatus) Exempt() bool {
	return s == VATExcluded || s == VATNotApplicable
}

func (s VATStatus) Valid() bool {
	return s == VATExcluded || s == VATIncluded || s == VATNotApplicable
}

type Entity string

const (
	EntityHypervisual Entity = "hypervisual"
	EntityDainamics   Entity = "dainamics"
	EntityEnkiReality Entity = "enki_reality"
	EntityTakeout     Entity = "takeout"
	EntityLexaia      Entity = "lexaia"
)

// PrimaryEntity is assumed when no entity marker is found in a document.
const PrimaryEntity = EntityHypervisual

func (e Entity) Valid() bool {
	switch e {
	case EntityHypervisual, EntityDainamics, EntityEnkiReality, EntityTakeout, EntityLexaia:
		return true
	}
	return false
}

const (
	UnknownSupplier = "Fournisseur non identifié"
	UnknownClient   = "CLIENT NON DÉTECTÉ"
	DefaultCurrency = "CHF"
)

type TypeScore struct {
	Type              DocumentType `json:"type"`
	Score             int          `json:"score"`
	Confidence        float64      `json:"confidence"`
	MatchedKeywords   int          `json:"matched_keywords"`
	MatchedIndicators int          `json:"matched_indicators"`
}

type Client struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Country string `json:"country,omitempty"`
}

type Supplier struct {
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	PostalCity string `json:"postal_city,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
}

// Amounts holds document totals in the document currency.
// NetHT and VAT are nil when the document does not show them.
type Amounts struct {
	NetHT    *float64 `json:"net_ht,omitempty"`
	VAT      *float64 `json:"vat,omitempty"`
	GrossTTC float64  `json:"gross_ttc"`
}

type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// ExtractionRecord is the canonical shape produced by the heuristic
// extractor, the enrichment adapter and the merger.
type ExtractionRecord struct {
	DocumentType     DocumentType `json:"document_type"`
	TypeConfidence   float64      `json:"type_confidence"`
	TypeAlternatives []TypeScore  `json:"type_alternatives,omitempty"`
	Entity           Entity       `json:"entity"`

	Client   Client   `json:"client"`
	Supplier Supplier `json:"supplier"`

	IssueDate      time.Time  `json:"issue_date"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	DocumentNumber string     `json:"document_number"`

	Amounts   Amounts    `json:"amounts"`
	VATRate   float64    `json:"vat_rate"`
	Currency  string     `json:"currency"`
	VATStatus VATStatus  `json:"vat_status"`
	LineItems []LineItem `json:"line_items,omitempty"`

	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// EnforceExemption zeroes VAT and rate when the status carries no VAT.
func (r *ExtractionRecord) EnforceExemption() {
	if r.VATStatus.Exempt() {
		r.Amounts.VAT = Float(0)
		r.VATRate = 0
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Value dereferences p, returning 0 for nil.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
