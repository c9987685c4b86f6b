package enrichment

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"docvat/internal/extraction"
	"docvat/pkg/models"
)

const isoDate = "2006-01-02"

// payload is the JSON document exchanged with the model. It serves both as
// the "basic data" block of the prompt and as the expected answer; field
// names follow the French accounting vocabulary the prompt asks for.
type payload struct {
	Type          string        `json:"type"`
	Entite        string        `json:"entite"`
	Client        string        `json:"client"`
	ClientAddress string        `json:"clientAddress,omitempty"`
	ClientCountry string        `json:"clientCountry,omitempty"`
	Numero        string        `json:"numero"`
	Date          string        `json:"date"`
	DateEcheance  *string       `json:"date_echeance"`
	Fournisseur   supplierField `json:"fournisseur"`
	MontantHT     flexFloat     `json:"montant_ht"`
	MontantTVA    flexFloat     `json:"montant_tva"`
	MontantTTC    flexFloat     `json:"montant_ttc"`
	TauxTVA       flexFloat     `json:"taux_tva"`
	Devise        string        `json:"devise"`
	VATStatus     string        `json:"vat_status"`
	LigneArticles []lineItem    `json:"ligne_articles,omitempty"`
	Confidence    flexFloat     `json:"confidence"`
}

type lineItem struct {
	Description  string    `json:"description"`
	Quantite     flexFloat `json:"quantite"`
	PrixUnitaire flexFloat `json:"prix_unitaire"`
	Total        flexFloat `json:"total"`
}

// supplierField accepts either a supplier object or a bare name.
type supplierField struct {
	Nom       string  `json:"nom"`
	Adresse   string  `json:"adresse,omitempty"`
	NPAVille  string  `json:"npa_ville,omitempty"`
	NumeroTVA *string `json:"numero_tva"`
}

func (s *supplierField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Nom)
	}

	var raw struct {
		Nom       string  `json:"nom"`
		Name      string  `json:"name"`
		Adresse   string  `json:"adresse"`
		NPAVille  string  `json:"npa_ville"`
		NumeroTVA *string `json:"numero_tva"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Nom = raw.Nom
	if s.Nom == "" {
		s.Nom = raw.Name
	}
	s.Adresse = raw.Adresse
	s.NPAVille = raw.NPAVille
	s.NumeroTVA = raw.NumeroTVA
	return nil
}

// flexFloat is a nullable number that models also emit as a string,
// sometimes with Swiss or European grouping.
type flexFloat struct {
	Value *float64
}

func (f flexFloat) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	f.Value = nil

	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			f.Value = &v
			return nil
		}
		if v, ok := extraction.ParseAmount(s); ok {
			f.Value = &v
		}
		return nil
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.Value = &v
		return nil
	}
}

func (f flexFloat) or(fallback float64) float64 {
	if f.Value == nil {
		return fallback
	}
	return *f.Value
}

func flex(v *float64) flexFloat {
	return flexFloat{Value: v}
}

// payloadFromRecord renders the heuristic record for the prompt.
func payloadFromRecord(r models.ExtractionRecord) payload {
	p := payload{
		Type:          string(r.DocumentType),
		Entite:        string(r.Entity),
		Client:        r.Client.Name,
		ClientAddress: r.Client.Address,
		ClientCountry: r.Client.Country,
		Numero:        r.DocumentNumber,
		Fournisseur:   supplierField{Nom: r.Supplier.Name, Adresse: r.Supplier.Address, NPAVille: r.Supplier.PostalCity},
		MontantHT:     flex(r.Amounts.NetHT),
		MontantTVA:    flex(r.Amounts.VAT),
		MontantTTC:    flex(models.Float(r.Amounts.GrossTTC)),
		TauxTVA:       flex(models.Float(r.VATRate)),
		Devise:        r.Currency,
		VATStatus:     string(r.VATStatus),
		Confidence:    flex(models.Float(r.Confidence)),
	}
	if !r.IssueDate.IsZero() {
		p.Date = r.IssueDate.Format(isoDate)
	}
	if r.DueDate != nil {
		due := r.DueDate.Format(isoDate)
		p.DateEcheance = &due
	}
	if r.Supplier.TaxID != "" {
		p.Fournisseur.NumeroTVA = &r.Supplier.TaxID
	}
	return p
}

// toRecord converts a model answer. Unknown enum values are left empty so
// the merger falls back to the heuristic value.
func (p payload) toRecord(source string) *models.ExtractionRecord {
	r := &models.ExtractionRecord{
		Client: models.Client{
			Name:    strings.TrimSpace(p.Client),
			Address: strings.TrimSpace(p.ClientAddress),
			Country: strings.TrimSpace(p.ClientCountry),
		},
		Supplier: models.Supplier{
			Name:       strings.TrimSpace(p.Fournisseur.Nom),
			Address:    strings.TrimSpace(p.Fournisseur.Adresse),
			PostalCity: strings.TrimSpace(p.Fournisseur.NPAVille),
		},
		DocumentNumber: strings.TrimSpace(p.Numero),
		Amounts: models.Amounts{
			NetHT:    p.MontantHT.Value,
			VAT:      p.MontantTVA.Value,
			GrossTTC: p.MontantTTC.or(0),
		},
		VATRate:    p.TauxTVA.or(0),
		Currency:   strings.ToUpper(strings.TrimSpace(p.Devise)),
		Confidence: p.Confidence.or(0),
		Source:     source,
	}

	if t := models.DocumentType(strings.TrimSpace(p.Type)); t.Valid() {
		r.DocumentType = t
	}
	if e := models.Entity(strings.ToLower(strings.TrimSpace(p.Entite))); e.Valid() {
		r.Entity = e
	}
	if s := models.VATStatus(strings.ToLower(strings.TrimSpace(p.VATStatus))); s.Valid() {
		r.VATStatus = s
	}
	if p.Fournisseur.NumeroTVA != nil {
		r.Supplier.TaxID = strings.TrimSpace(*p.Fournisseur.NumeroTVA)
	}
	if t, err := time.Parse(isoDate, strings.TrimSpace(p.Date)); err == nil {
		r.IssueDate = t
	}
	if p.DateEcheance != nil {
		if t, err := time.Parse(isoDate, strings.TrimSpace(*p.DateEcheance)); err == nil {
			r.DueDate = &t
		}
	}
	for _, item := range p.LigneArticles {
		r.LineItems = append(r.LineItems, models.LineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantite.or(0),
			UnitPrice:   item.PrixUnitaire.or(0),
			Total:       item.Total.or(0),
		})
	}

	r.EnforceExemption()
	return r
}
