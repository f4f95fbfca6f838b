package domain

import "strings"

// Polarity is the directional reading of one sentiment label.
// Labels are mapped to a Polarity once, at the scoring boundary.
type Polarity int8

const (
	PolarityNegative Polarity = -1
	PolarityNeutral  Polarity = 0
	PolarityPositive Polarity = 1
)

// Label strings understood by ParsePolarity.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// ParsePolarity maps an oracle label to a Polarity.
// Matching is case-insensitive; any unrecognized label is neutral.
func ParsePolarity(label string) Polarity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case LabelPositive:
		return PolarityPositive
	case LabelNegative:
		return PolarityNegative
	default:
		return PolarityNeutral
	}
}

// String returns the canonical label of the polarity.
func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return LabelPositive
	case PolarityNegative:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Int returns the polarity as -1, 0 or +1.
func (p Polarity) Int() int {
	return int(p)
}
