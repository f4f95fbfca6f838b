// Package signal reduces scored records to one directional signal per
// ticker per calendar date.
package signal

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"wsb-sentiment-lab/internal/domain"
)

type groupKey struct {
	date   time.Time
	ticker string
}

type group struct {
	polaritySum int
	scores      stats.Float64Data
	positive    int
	neutral     int
	negative    int
}

// Aggregate groups records by (date, ticker). The signal is the sign of the
// mean polarity; the sign is taken from the integer polarity sum so a mean
// of exactly zero is always neutral. Output is sorted by date, then ticker.
func Aggregate(records []domain.ScoredRecord) []domain.DailySignal {
	groups := make(map[groupKey]*group)
	for _, r := range records {
		k := groupKey{date: r.Date, ticker: r.Ticker}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
		}

		g.polaritySum += r.Polarity.Int()
		g.scores = append(g.scores, r.Score)
		switch r.Polarity {
		case domain.PolarityPositive:
			g.positive++
		case domain.PolarityNegative:
			g.negative++
		default:
			g.neutral++
		}
	}

	out := make([]domain.DailySignal, 0, len(groups))
	for k, g := range groups {
		meanScore, _ := stats.Mean(g.scores) // groups are never empty
		out = append(out, domain.DailySignal{
			Date:          k.date,
			Ticker:        k.ticker,
			PostCount:     len(g.scores),
			Signal:        domain.SignOfInt(g.polaritySum),
			MeanScore:     meanScore,
			PositiveCount: g.positive,
			NeutralCount:  g.neutral,
			NegativeCount: g.negative,
		})
	}

	SortSignals(out)
	return out
}

// SortSignals orders signals by date ASC, ticker ASC.
func SortSignals(signals []domain.DailySignal) {
	sort.Slice(signals, func(i, j int) bool {
		if !signals[i].Date.Equal(signals[j].Date) {
			return signals[i].Date.Before(signals[j].Date)
		}
		return signals[i].Ticker < signals[j].Ticker
	})
}

// FilterMinPosts keeps signals with at least minPosts records.
// minPosts <= 1 keeps everything.
func FilterMinPosts(signals []domain.DailySignal, minPosts int) []domain.DailySignal {
	if minPosts <= 1 {
		return signals
	}
	out := make([]domain.DailySignal, 0, len(signals))
	for _, s := range signals {
		if s.PostCount >= minPosts {
			out = append(out, s)
		}
	}
	return out
}

// MeanPolarity returns the exact mean polarity of a signal's group.
func MeanPolarity(s domain.DailySignal) float64 {
	if s.PostCount == 0 {
		return 0
	}
	return float64(s.PositiveCount-s.NegativeCount) / float64(s.PostCount)
}
