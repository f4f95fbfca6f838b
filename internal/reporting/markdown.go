package reporting

import (
	"fmt"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sentiment Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Outcome: %s\n\n", r.Run.RunID, r.Run.Outcome))

	// Run
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Setting | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Window | %s .. %s |\n", domain.FormatDate(r.Run.StartDate), domain.FormatDate(r.Run.EndDate)))
	sb.WriteString(fmt.Sprintf("| Tickers | %s |\n", strings.Join(r.Run.Tickers, ", ")))
	sb.WriteString(fmt.Sprintf("| Models | %s |\n", strings.Join(r.Run.Models, ", ")))
	sb.WriteString(fmt.Sprintf("| Records Kept | %d |\n", r.Run.RowsKept))
	sb.WriteString(fmt.Sprintf("| Rows Aligned | %d |\n", r.Run.RowsAligned))
	sb.WriteString(fmt.Sprintf("| Posts Analyzed | %d |\n", r.Dashboard.PostsAnalyzed))
	sb.WriteString("\n")

	// Model Comparison
	sb.WriteString("## Model Comparison\n\n")
	if len(r.Summary.Models) > 0 {
		sb.WriteString("| Model | Rows | Accuracy | AvgConfidence | Texts | SecPerText |\n")
		sb.WriteString("|-------|------|----------|---------------|-------|------------|\n")
		for _, m := range r.Summary.Models {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %d | %.6f |\n",
				m.Model, m.Rows, m.Accuracy, m.AvgConfidence, m.TextCount, m.SecPerText))
		}
	} else {
		sb.WriteString("No model results available.\n")
	}
	sb.WriteString("\n")

	// Sentiment Distribution
	sb.WriteString("## Sentiment Distribution\n\n")
	if len(r.Summary.Models) > 0 {
		sb.WriteString("Predicted direction per model, weighted by post count.\n\n")
		sb.WriteString("| Model | Positive | Neutral | Negative |\n")
		sb.WriteString("|-------|----------|---------|----------|\n")
		for _, m := range r.Summary.Models {
			d := r.Dashboard.SentimentDistribution[m.Model]
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n", m.Model, d.Pos, d.Neu, d.Neg))
		}
	} else {
		sb.WriteString("No distribution available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
