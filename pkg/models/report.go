package models

// Issue is a single validation finding attached to a record field.
type Issue struct {
	Field        string   `json:"field"`
	Message      string   `json:"message"`
	SuggestedFix *float64 `json:"suggested_fix,omitempty"`
}

type ValidationReport struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Score    float64 `json:"score"`
}

type PageText struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RecognizedText is the OCR output for one document.
type RecognizedText struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	PageCount  int        `json:"page_count"`
	Pages      []PageText `json:"pages,omitempty"`

	// Placeholder is set when recognition was unavailable and Text is synthetic.
	Placeholder bool `json:"placeholder,omitempty"`
	// LowConfidence is set when Confidence fell below the configured floor.
	LowConfidence bool `json:"low_confidence,omitempty"`
}
