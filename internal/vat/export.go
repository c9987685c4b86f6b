package vat

import (
	"encoding/xml"
	"fmt"
	"time"
)

// AFCNamespace is the namespace of the e-filing declaration document.
const AFCNamespace = "http://www.estv.admin.ch/xmlns/mwst/vat-declaration/1.0"

// amount marshals as text with exactly two decimals.
type amount float64

func (a amount) MarshalText() ([]byte, error) {
	return []byte(FormatAmount(float64(a))), nil
}

type afcDeclaration struct {
	XMLName    xml.Name      `xml:"VATDeclaration"`
	Xmlns      string        `xml:"xmlns,attr"`
	Header     afcHeader     `xml:"Header"`
	Revenue    afcRevenue    `xml:"Revenue"`
	Deductible afcDeductible `xml:"Deductible"`
	Result     afcResult     `xml:"Result"`
}

type afcHeader struct {
	DeclarationID string    `xml:"DeclarationId"`
	VATNumber     string    `xml:"VATNumber"`
	Period        afcPeriod `xml:"Period"`
	CreatedDate   string    `xml:"CreatedDate"`
}

type afcPeriod struct {
	Year int    `xml:"Year"`
	Type string `xml:"Type"`
	Code string `xml:"Code"`
}

type afcRevenue struct {
	R302 amount `xml:"Rubrique302"`
	R303 amount `xml:"Rubrique303"`
	R312 amount `xml:"Rubrique312"`
	R313 amount `xml:"Rubrique313"`
	R342 amount `xml:"Rubrique342"`
	R343 amount `xml:"Rubrique343"`
	R399 amount `xml:"Rubrique399"`
}

type afcDeductible struct {
	R400 amount `xml:"Rubrique400"`
	R405 amount `xml:"Rubrique405"`
	R410 amount `xml:"Rubrique410"`
	R415 amount `xml:"Rubrique415"`
	R479 amount `xml:"Rubrique479"`
}

type afcResult struct {
	R500 amount `xml:"Rubrique500"`
	R510 amount `xml:"Rubrique510"`
}

// ExportAFC renders the declaration as an AFC XML document. It does not
// modify the declaration.
func (d *Declaration) ExportAFC() ([]byte, error) {
	doc := afcDeclaration{
		Xmlns: AFCNamespace,
		Header: afcHeader{
			DeclarationID: d.ID,
			VATNumber:     d.VATNumber,
			Period: afcPeriod{
				Year: d.Period.Year,
				Type: string(d.Period.Type),
				Code: d.Period.Code,
			},
			CreatedDate: d.CreatedAt.UTC().Format(time.RFC3339),
		},
		Revenue: afcRevenue{
			R302: amount(d.Collected.NormalRate.NetAmount),
			R303: amount(d.Collected.NormalRate.VATAmount),
			R312: amount(d.Collected.ReducedRate.NetAmount),
			R313: amount(d.Collected.ReducedRate.VATAmount),
			R342: amount(d.Collected.LodgingRate.NetAmount),
			R343: amount(d.Collected.LodgingRate.VATAmount),
			R399: amount(d.Collected.TotalCollected),
		},
		Deductible: afcDeductible{
			R400: amount(d.Deductible.Goods.VATAmount),
			R405: amount(d.Deductible.Services.VATAmount),
			R410: amount(d.Deductible.Investments.VATAmount),
			R415: amount(d.Deductible.Corrections),
			R479: amount(d.Deductible.TotalDeductible),
		},
		Result: afcResult{
			R500: amount(d.Result.VATToPay),
			R510: amount(d.Result.VATToRecover),
		},
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding AFC export for %s: %w", d.ID, err)
	}

	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}
