package domain

import "time"

// DailySignal is the aggregated sentiment of one ticker on one calendar date.
type DailySignal struct {
	Date      time.Time
	Ticker    string
	PostCount int       // records folded into the group, >= 1
	Signal    Direction // sign of mean polarity
	MeanScore float64   // mean oracle confidence

	// Label distribution of the group
	PositiveCount int
	NeutralCount  int
	NegativeCount int
}
