package privacy

import (
	"unicode"
	"unicode/utf8"
)

// DetectionFeatures is the scorer input for one candidate
type DetectionFeatures struct {
	Kind      Kind
	Source    Source
	Length    int // characters
	HasDigits bool
	HasAlpha  bool
}

// Scorer maps candidate features to a confidence in [0, 0.99]
type Scorer func(DetectionFeatures) float64

const maxConfidence = 0.99

// highValueKinds get a confidence bonus because their patterns are specific
var highValueKinds = map[Kind]bool{
	KindSSN:   true,
	KindMRN:   true,
	KindIP:    true,
	KindEmail: true,
	KindPhone: true,
}

// FeaturesOf extracts scorer features from a matched span
func FeaturesOf(kind Kind, source Source, text string) DetectionFeatures {
	f := DetectionFeatures{
		Kind:   kind,
		Source: source,
		Length: utf8.RuneCountInString(text),
	}
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			f.HasDigits = true
		case unicode.IsLetter(r):
			f.HasAlpha = true
		}
	}
	return f
}

// Score is the default heuristic scorer
func Score(f DetectionFeatures) float64 {
	score := 0.5
	if f.Source == SourceEntity {
		score += 0.2
	}
	if f.Length >= 8 {
		score += 0.15
	}
	if f.HasDigits && !f.HasAlpha {
		score += 0.1
	}
	if highValueKinds[f.Kind] {
		score += 0.1
	}

	if score < 0 {
		return 0
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
