package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1'081.00", 1081, true},
		{"1’081.50", 1081.5, true},
		{"1.081,00", 1081, true},
		{"12.500", 12500, true},
		{"1,081.00", 1081, true},
		{"81,50", 81.5, true},
		{"81.00", 81, true},
		{"10000", 10000, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExtractAmount(t *testing.T) {
	text := "Sous-total HT: 1.081,00\nTVA 8.1% 87.56\nMWST: 87.56\nTotal 1'168.56"

	net, ok := ExtractAmount(text, AmountNet)
	assert.True(t, ok)
	assert.InDelta(t, 1081.0, net, 1e-9)

	vat, ok := ExtractAmount(text, AmountVAT)
	assert.True(t, ok, "the percentage after TVA is skipped")
	assert.InDelta(t, 87.56, vat, 1e-9)

	gross, ok := ExtractAmount(text, AmountGross)
	assert.True(t, ok)
	assert.InDelta(t, 1168.56, gross, 1e-9)

	vat, ok = ExtractAmount("Sous-total 1'000.00\nTVA 8.1%: 81.00\nTotal TTC 1'081.00", AmountVAT)
	assert.True(t, ok, "the amount after the rate on the same line")
	assert.InDelta(t, 81.0, vat, 1e-9)

	_, ok = ExtractAmount("TVA 8.1% incluse\nMerci 1000", AmountVAT)
	assert.False(t, ok, "the next line is not read")

	_, ok = ExtractAmount("nothing labelled 42", AmountNet)
	assert.False(t, ok)

	_, ok = ExtractAmount("HT 10", AmountKind("NET"))
	assert.False(t, ok)
}

func TestLastAmount(t *testing.T) {
	v, ok := LastAmount("Article A 12.00\nArticle B 30.00\nRemise 5 %")
	assert.True(t, ok)
	assert.InDelta(t, 30.0, v, 1e-9)

	_, ok = LastAmount("no digits")
	assert.False(t, ok)
}
