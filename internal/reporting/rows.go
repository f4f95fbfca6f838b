package reporting

import (
	"errors"
	"strings"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

// ErrUnknownModel is returned when a query names a model the table lacks.
var ErrUnknownModel = errors.New("unknown model")

// RowFilter selects rows of one model. Ticker is matched case-insensitively.
// The date window applies only when both Start and End (YYYY-MM-DD) are set.
type RowFilter struct {
	Model  string
	Ticker string
	Start  string
	End    string
}

// RowView is one model's verdict rendered for display.
type RowView struct {
	Date    string  `json:"date"`
	Ticker  string  `json:"ticker"`
	Pred    string  `json:"pred"`
	Real    string  `json:"real"`
	Correct bool    `json:"correct"`
	Conf    float64 `json:"conf"`
}

// QueryRows returns the rows of f.Model matching f, in table order.
func QueryRows(table *evaluation.Table, f RowFilter) ([]RowView, error) {
	known := false
	for _, m := range table.Models {
		if m == f.Model {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownModel
	}

	ticker := strings.ToUpper(strings.TrimSpace(f.Ticker))
	useWindow := f.Start != "" && f.End != ""

	out := []RowView{}
	for _, r := range table.Rows {
		if ticker != "" && r.Ticker != ticker {
			continue
		}
		date := domain.FormatDate(r.Date)
		if useWindow && (date < f.Start || date > f.End) {
			continue
		}
		c, ok := r.Cells[f.Model]
		if !ok {
			continue
		}
		out = append(out, RowView{
			Date:    date,
			Ticker:  r.Ticker,
			Pred:    c.Predicted.String(),
			Real:    r.Realized.String(),
			Correct: c.Correct,
			Conf:    c.MeanScore,
		})
	}
	return out, nil
}
