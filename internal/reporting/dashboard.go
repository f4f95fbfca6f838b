package reporting

import (
	"github.com/montanaflynn/stats"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

// Window is the date span covered by a result table.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ModelComparison is one model's row in the dashboard comparison table.
type ModelComparison struct {
	Model               string  `json:"model"`
	DirectionalAccuracy float64 `json:"directionalAccuracy"`
	EvaluatedDays       int     `json:"evaluatedDays"`
	AvgConfidence       float64 `json:"avgConfidence"`
	AvgLatencyMs        float64 `json:"avgLatencyMs"`
}

// Distribution counts predicted directions weighted by post count.
type Distribution struct {
	Pos int `json:"pos"`
	Neu int `json:"neu"`
	Neg int `json:"neg"`
}

// Dashboard is the summary served to the results UI.
type Dashboard struct {
	Window                Window                  `json:"window"`
	Tickers               []string                `json:"tickers"`
	PostsAnalyzed         int                     `json:"postsAnalyzed"`
	DaysEvaluated         int                     `json:"daysEvaluated"`
	ModelComparison       []ModelComparison       `json:"modelComparison"`
	SentimentDistribution map[string]Distribution `json:"sentimentDistribution"`
}

// BuildDashboard summarizes a result table. latency may be nil, in which
// case latency columns are zero.
func BuildDashboard(table *evaluation.Table, latency []domain.ModelLatency) Dashboard {
	d := Dashboard{
		Tickers:               []string{},
		ModelComparison:       []ModelComparison{},
		SentimentDistribution: make(map[string]Distribution, len(table.Models)),
		DaysEvaluated:         len(table.Rows),
	}

	seen := make(map[string]bool)
	for i, r := range table.Rows {
		date := domain.FormatDate(r.Date)
		if i == 0 || date < d.Window.Start {
			d.Window.Start = date
		}
		if date > d.Window.End {
			d.Window.End = date
		}
		if !seen[r.Ticker] {
			seen[r.Ticker] = true
			d.Tickers = append(d.Tickers, r.Ticker)
		}
		d.PostsAnalyzed += r.PostCount
	}

	summary := evaluation.Summarize(table, latency)
	for _, m := range summary.Models {
		d.ModelComparison = append(d.ModelComparison, ModelComparison{
			Model:               m.Model,
			DirectionalAccuracy: round6(m.Accuracy),
			EvaluatedDays:       m.Rows,
			AvgConfidence:       round6(m.AvgConfidence),
			AvgLatencyMs:        round6(m.SecPerText * 1000),
		})

		var dist Distribution
		for _, r := range table.Rows {
			c, ok := r.Cells[m.Model]
			if !ok {
				continue
			}
			w := r.PostCount
			if w == 0 {
				w = 1
			}
			switch c.Predicted {
			case domain.DirectionUp:
				dist.Pos += w
			case domain.DirectionDown:
				dist.Neg += w
			default:
				dist.Neu += w
			}
		}
		d.SentimentDistribution[m.Model] = dist
	}

	return d
}

func round6(v float64) float64 {
	r, err := stats.Round(v, 6)
	if err != nil {
		return v
	}
	return r
}
