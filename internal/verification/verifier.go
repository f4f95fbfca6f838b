// Package verification checks that a stored backtest run matches a fresh
// evaluation of the same configuration.
package verification

import (
	"fmt"
	"math"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

// FloatTolerance is the tolerance for float64 comparisons.
// Stored prices and scores pass through a database round trip.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name, prefixed with the model for per-model cells
	Expected any    // stored value
	Actual   any    // replayed value
}

// RowResult is the outcome of comparing one (date, ticker) row.
type RowResult struct {
	Date        string
	Ticker      string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for a whole table.
type Report struct {
	TotalRows     int // rows present in either table
	MatchedRows   int
	DivergentRows int
	MissingRows   int // rows only the replayed table has
	ExtraRows     int // rows only the stored table has
	Results       []RowResult
}

// Match reports whether both tables agree row for row.
func (r *Report) Match() bool {
	return r.DivergentRows == 0 && r.MissingRows == 0 && r.ExtraRows == 0
}

// String summarizes the report in one line.
func (r *Report) String() string {
	return fmt.Sprintf("%d rows: %d matched, %d divergent, %d missing, %d extra",
		r.TotalRows, r.MatchedRows, r.DivergentRows, r.MissingRows, r.ExtraRows)
}

type rowKey struct {
	date   string
	ticker string
}

// CompareTables compares every row of stored against replayed, over the
// models of replayed. Results follow the replayed table's order, then rows
// only stored has.
func CompareTables(stored, replayed *evaluation.Table) *Report {
	report := &Report{}

	storedRows := make(map[rowKey]*evaluation.Row, len(stored.Rows))
	for _, r := range stored.Rows {
		storedRows[rowKey{domain.FormatDate(r.Date), r.Ticker}] = r
	}

	seen := make(map[rowKey]struct{}, len(replayed.Rows))
	for _, r := range replayed.Rows {
		key := rowKey{domain.FormatDate(r.Date), r.Ticker}
		seen[key] = struct{}{}
		report.TotalRows++

		s, ok := storedRows[key]
		if !ok {
			report.MissingRows++
			report.Results = append(report.Results, RowResult{
				Date:   key.date,
				Ticker: key.ticker,
				Divergences: []FieldDivergence{
					{Field: "Row", Expected: nil, Actual: key.date + " " + key.ticker},
				},
			})
			continue
		}

		divs := CompareRows(s, r, replayed.Models)
		res := RowResult{Date: key.date, Ticker: key.ticker, Match: len(divs) == 0, Divergences: divs}
		if res.Match {
			report.MatchedRows++
		} else {
			report.DivergentRows++
		}
		report.Results = append(report.Results, res)
	}

	for _, r := range stored.Rows {
		key := rowKey{domain.FormatDate(r.Date), r.Ticker}
		if _, ok := seen[key]; ok {
			continue
		}
		report.TotalRows++
		report.ExtraRows++
		report.Results = append(report.Results, RowResult{
			Date:   key.date,
			Ticker: key.ticker,
			Divergences: []FieldDivergence{
				{Field: "Row", Expected: key.date + " " + key.ticker, Actual: nil},
			},
		})
	}

	return report
}

// CompareRows compares two rows and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareRows(stored, replayed *evaluation.Row, models []string) []FieldDivergence {
	var divergences []FieldDivergence

	if !stored.NextTradingDate.Equal(replayed.NextTradingDate) {
		divergences = append(divergences, FieldDivergence{
			Field:    "NextTradingDate",
			Expected: domain.FormatDate(stored.NextTradingDate),
			Actual:   domain.FormatDate(replayed.NextTradingDate),
		})
	}

	if stored.PostCount != replayed.PostCount {
		divergences = append(divergences, FieldDivergence{
			Field:    "PostCount",
			Expected: stored.PostCount,
			Actual:   replayed.PostCount,
		})
	}

	if !floatEquals(stored.CloseT, replayed.CloseT) {
		divergences = append(divergences, FieldDivergence{
			Field:    "CloseT",
			Expected: stored.CloseT,
			Actual:   replayed.CloseT,
		})
	}

	if !floatEquals(stored.CloseT1, replayed.CloseT1) {
		divergences = append(divergences, FieldDivergence{
			Field:    "CloseT1",
			Expected: stored.CloseT1,
			Actual:   replayed.CloseT1,
		})
	}

	if stored.Realized != replayed.Realized {
		divergences = append(divergences, FieldDivergence{
			Field:    "Realized",
			Expected: stored.Realized,
			Actual:   replayed.Realized,
		})
	}

	// Per-model cells
	for _, model := range models {
		s, sok := stored.Cell(model)
		r, rok := replayed.Cell(model)
		if sok != rok {
			divergences = append(divergences, FieldDivergence{
				Field:    model + ".Present",
				Expected: sok,
				Actual:   rok,
			})
			continue
		}
		if !sok {
			continue
		}
		if s.Predicted != r.Predicted {
			divergences = append(divergences, FieldDivergence{
				Field:    model + ".Predicted",
				Expected: s.Predicted,
				Actual:   r.Predicted,
			})
		}
		if s.Correct != r.Correct {
			divergences = append(divergences, FieldDivergence{
				Field:    model + ".Correct",
				Expected: s.Correct,
				Actual:   r.Correct,
			})
		}
		if !floatEquals(s.MeanScore, r.MeanScore) {
			divergences = append(divergences, FieldDivergence{
				Field:    model + ".MeanScore",
				Expected: s.MeanScore,
				Actual:   r.MeanScore,
			})
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
