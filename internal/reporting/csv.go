package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

// Fixed leading columns of the result table.
var baseColumns = []string{"date", "next_trading_day", "ticker", "close_t", "close_t1", "real_dir", "n_posts"}

// Per-model column suffixes, in column order.
const (
	suffixPred    = "_pred_dir"
	suffixCorrect = "_correct"
	suffixScore   = "_mean_score"
)

// ErrMalformedTable is returned by ParseCSV for tables it cannot read back.
var ErrMalformedTable = errors.New("malformed result table")

// RenderCSV renders the result table as CSV string.
// Floats use the shortest representation that round-trips, so identical
// inputs render byte-identical output. A model without a row leaves its
// columns empty.
func RenderCSV(table *evaluation.Table) string {
	var sb strings.Builder

	// Header
	sb.WriteString(strings.Join(baseColumns, ","))
	for _, m := range table.Models {
		sb.WriteString(fmt.Sprintf(",%s%s,%s%s,%s%s", m, suffixPred, m, suffixCorrect, m, suffixScore))
	}
	sb.WriteString("\n")

	// Rows
	for _, r := range table.Rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d",
			domain.FormatDate(r.Date),
			domain.FormatDate(r.NextTradingDate),
			r.Ticker,
			formatFloat(r.CloseT),
			formatFloat(r.CloseT1),
			r.Realized.Int(),
			r.PostCount,
		))
		for _, m := range table.Models {
			c, ok := r.Cells[m]
			if !ok {
				sb.WriteString(",,,")
				continue
			}
			sb.WriteString(fmt.Sprintf(",%d,%d,%s", c.Predicted.Int(), boolToInt(c.Correct), formatFloat(c.MeanScore)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ParseCSV reads a result table rendered by RenderCSV. Models are detected
// from the <model>_pred_dir columns; a header BOM is tolerated.
func ParseCSV(r io.Reader) (*evaluation.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMalformedTable)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range baseColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedTable, col)
		}
	}

	table := &evaluation.Table{}
	for _, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if model, ok := strings.CutSuffix(h, suffixPred); ok && model != "" {
			table.Models = append(table.Models, model)
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRow(rec, idx, table.Models)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		table.Rows = append(table.Rows, row)
	}

	evaluation.SortRows(table.Rows)
	return table, nil
}

func parseRow(rec []string, idx map[string]int, models []string) (*evaluation.Row, error) {
	field := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	row := &evaluation.Row{Ticker: strings.ToUpper(field("ticker")), Cells: make(map[string]evaluation.Cell)}
	var err error
	if row.Date, err = domain.ParseDate(field("date")); err != nil {
		return nil, err
	}
	if row.NextTradingDate, err = domain.ParseDate(field("next_trading_day")); err != nil {
		return nil, err
	}
	if row.CloseT, err = strconv.ParseFloat(field("close_t"), 64); err != nil {
		return nil, fmt.Errorf("close_t: %w", err)
	}
	if row.CloseT1, err = strconv.ParseFloat(field("close_t1"), 64); err != nil {
		return nil, fmt.Errorf("close_t1: %w", err)
	}
	if row.Realized, err = domain.ParseDirection(field("real_dir")); err != nil {
		return nil, err
	}
	if row.PostCount, err = strconv.Atoi(field("n_posts")); err != nil {
		return nil, fmt.Errorf("n_posts: %w", err)
	}

	for _, m := range models {
		pred := field(m + suffixPred)
		if pred == "" {
			continue // model has no verdict for this row
		}
		var c evaluation.Cell
		if c.Predicted, err = domain.ParseDirection(pred); err != nil {
			return nil, err
		}
		c.Correct = field(m+suffixCorrect) == "1"
		if s := field(m + suffixScore); s != "" {
			if c.MeanScore, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%s%s: %w", m, suffixScore, err)
			}
		}
		row.Cells[m] = c
	}
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
