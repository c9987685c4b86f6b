package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docvat/pkg/models"
)

func TestExtractClient(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Client
	}{
		{
			name: "legal suffix",
			text: "HYPERVISUAL\n1700 Fribourg\nPROMIDEA SRL\nVia Roma 3\n20121 Milano, Italia\nInvoice INV-2025-07\nTotal 100",
			want: models.Client{Name: "PROMIDEA SRL", Address: "Via Roma 3, 20121 Milano, Italia", Country: "Italy"},
		},
		{
			name: "all caps line",
			text: "HYPERVISUAL\nFribourg\nsome attention line\nATELIER DU LAC\nRue du Lac 4, 1000 Lausanne, Suisse\nDate: 01.02.2025",
			want: models.Client{Name: "ATELIER DU LAC", Address: "some attention line, Rue du Lac 4, 1000 Lausanne, Suisse", Country: "Switzerland"},
		},
		{
			name: "explicit label",
			text: "HYPERVISUAL\nBill to: Jane Doe\n12 Baker Street, London UK\nN° 55",
			want: models.Client{Name: "Jane Doe", Address: "Bill to: Jane Doe, 12 Baker Street, London UK", Country: "United Kingdom"},
		},
		{
			name: "first line fallback",
			text: "HYPERVISUAL\nmaison dupont\nrue des fleurs 2\nDevis D-9",
			want: models.Client{Name: "maison dupont", Address: "rue des fleurs 2"},
		},
		{
			name: "no block",
			text: "HYPERVISUAL\nInvoice X-1",
			want: models.Client{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractClient(tt.text))
		})
	}
}

func TestDetectCountry(t *testing.T) {
	tests := map[string]string{
		"8000 Zürich, Schweiz":     "Switzerland",
		"Paris, FRANCE":            "France",
		"10115 Berlin, DE":         "Germany",
		"Toronto ON, CA":           "Canada",
		"Amsterdam, Pays-Bas":      "Netherlands",
		"Bruxelles, Belgique":      "Belgium",
		"Austin, United States":    "USA",
		"Zurich chemin des vignes": "",
		"":                         "",
	}
	for address, want := range tests {
		assert.Equal(t, want, DetectCountry(address), address)
	}
}
