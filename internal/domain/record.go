package domain

import "time"

// TickerAlias lists the surface forms that count as a mention of Ticker.
// Aliases keep their configured order.
type TickerAlias struct {
	Ticker  string
	Aliases []string
}

// AttributedRecord is one corpus text attributed to exactly one ticker.
type AttributedRecord struct {
	Date   time.Time // calendar date (UTC midnight)
	Ticker string
	Text   string // trimmed title + " " + body
}

// ScoredRecord is an AttributedRecord with the oracle's verdict for one model.
type ScoredRecord struct {
	AttributedRecord
	Label    string   // raw oracle label
	Polarity Polarity // derived from Label
	Score    float64  // confidence in [0, 1]
}
