// Package evaluation builds the result table of a backtest and its summary.
package evaluation

import (
	"errors"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"wsb-sentiment-lab/internal/domain"
)

// ErrNoModels is returned when there is nothing to evaluate.
var ErrNoModels = errors.New("no model runs to evaluate")

// ModelRun is the aligned output of one model.
type ModelRun struct {
	Model   string
	Rows    []domain.EvaluationRow
	Latency domain.ModelLatency
}

// Cell is one model's verdict for a (date, ticker) row.
type Cell struct {
	Predicted domain.Direction
	Correct   bool
	MeanScore float64
}

// Row is one matched (date, ticker) with every model's verdict.
type Row struct {
	Date            time.Time
	NextTradingDate time.Time
	Ticker          string
	CloseT          float64
	CloseT1         float64
	Realized        domain.Direction
	PostCount       int
	Cells           map[string]Cell // keyed by model
}

// Cell returns the verdict of model, ok is false when the model has no row.
func (r *Row) Cell(model string) (Cell, bool) {
	c, ok := r.Cells[model]
	return c, ok
}

// Table is the flat result table: rows ordered by (date, ticker),
// models in run order.
type Table struct {
	Models []string
	Rows   []*Row
}

// ModelSummary holds the headline numbers of one model.
type ModelSummary struct {
	Model         string
	Rows          int
	Accuracy      float64 // mean(correct)
	AvgConfidence float64 // mean of per-row mean scores
	TextCount     int
	SecPerText    float64
}

// Summary holds the run-level numbers printed after a backtest.
type Summary struct {
	RowsEvaluated int
	PostsAnalyzed int
	Models        []ModelSummary
}

// Model returns the summary of model, ok is false if it was not evaluated.
func (s Summary) Model(model string) (ModelSummary, bool) {
	for _, m := range s.Models {
		if m.Model == model {
			return m, true
		}
	}
	return ModelSummary{}, false
}

// Result bundles the table and its summary.
type Result struct {
	Table   *Table
	Summary Summary
}

// Evaluate merges the aligned rows of every model into one table keyed by
// (date, ticker) and computes per-model accuracy and latency.
func Evaluate(runs []ModelRun) (*Result, error) {
	if len(runs) == 0 {
		return nil, ErrNoModels
	}

	table := &Table{}
	index := make(rowIndex)
	latency := make([]domain.ModelLatency, 0, len(runs))

	for _, run := range runs {
		table.Models = append(table.Models, run.Model)
		lat := run.Latency
		if lat.Model == "" {
			lat.Model = run.Model
		}
		latency = append(latency, lat)

		for _, er := range run.Rows {
			row := index.upsert(table, er)
			row.Cells[run.Model] = Cell{
				Predicted: er.Signal,
				Correct:   er.Correct,
				MeanScore: er.MeanScore,
			}
		}
	}

	SortRows(table.Rows)
	return &Result{Table: table, Summary: Summarize(table, latency)}, nil
}

// TableFromRecords rebuilds a table from persisted per-model records.
// models fixes the column order; models without records are kept.
func TableFromRecords(models []string, records []*domain.EvaluationRecord) *Table {
	table := &Table{Models: append([]string(nil), models...)}
	known := make(map[string]bool, len(models))
	for _, m := range models {
		known[m] = true
	}

	index := make(rowIndex)
	for _, rec := range records {
		if !known[rec.Model] {
			known[rec.Model] = true
			table.Models = append(table.Models, rec.Model)
		}
		row := index.upsert(table, rec.EvaluationRow)
		row.Cells[rec.Model] = Cell{
			Predicted: rec.Signal,
			Correct:   rec.Correct,
			MeanScore: rec.MeanScore,
		}
	}

	SortRows(table.Rows)
	return table
}

// Summarize computes per-model accuracy over table. latency may be nil
// (for example when the table was read back from a CSV file).
func Summarize(table *Table, latency []domain.ModelLatency) Summary {
	s := Summary{RowsEvaluated: len(table.Rows)}
	for _, r := range table.Rows {
		s.PostsAnalyzed += r.PostCount
	}

	for _, model := range table.Models {
		var correct, scores stats.Float64Data
		for _, r := range table.Rows {
			c, ok := r.Cells[model]
			if !ok {
				continue
			}
			correct = append(correct, boolToFloat(c.Correct))
			scores = append(scores, c.MeanScore)
		}

		ms := ModelSummary{
			Model:         model,
			Rows:          len(correct),
			Accuracy:      mean(correct),
			AvgConfidence: mean(scores),
		}
		for _, l := range latency {
			if l.Model == model {
				ms.TextCount = l.TextCount
				ms.SecPerText = l.SecPerText
				break
			}
		}
		s.Models = append(s.Models, ms)
	}
	return s
}

// SortRows orders rows by date ASC, ticker ASC.
func SortRows(rows []*Row) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Ticker < rows[j].Ticker
	})
}

type rowKey struct {
	date   time.Time
	ticker string
}

type rowIndex map[rowKey]*Row

func (idx rowIndex) upsert(table *Table, er domain.EvaluationRow) *Row {
	k := rowKey{date: er.Date, ticker: er.Ticker}
	if row, ok := idx[k]; ok {
		return row
	}
	row := &Row{
		Date:            er.Date,
		NextTradingDate: er.NextTradingDate,
		Ticker:          er.Ticker,
		CloseT:          er.CloseT,
		CloseT1:         er.CloseT1,
		Realized:        er.RealizedDirection,
		PostCount:       er.PostCount,
		Cells:           make(map[string]Cell),
	}
	idx[k] = row
	table.Rows = append(table.Rows, row)
	return row
}

func mean(data stats.Float64Data) float64 {
	if len(data) == 0 {
		return 0
	}
	m, err := stats.Mean(data)
	if err != nil {
		return 0
	}
	return m
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
