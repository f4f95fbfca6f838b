package reporting

import (
	"fmt"
	"strings"

	"wsb-sentiment-lab/internal/evaluation"
)

// RenderSummary renders the console summary printed after a backtest.
func RenderSummary(s evaluation.Summary) string {
	var sb strings.Builder

	sb.WriteString("================ BACKTEST SUMMARY ================\n")
	sb.WriteString(fmt.Sprintf("Rows evaluated: %d\n", s.RowsEvaluated))
	sb.WriteString(fmt.Sprintf("Posts analyzed: %d\n", s.PostsAnalyzed))
	for _, m := range s.Models {
		sb.WriteString(fmt.Sprintf("\n%s directional accuracy: %.4f (%d rows)\n", m.Model, m.Accuracy, m.Rows))
	}

	sb.WriteString("\n================ LATENCY SUMMARY ================\n")
	for _, m := range s.Models {
		sb.WriteString(fmt.Sprintf("%s sec_per_text = %.6f\n", m.Model, m.SecPerText))
	}

	return sb.String()
}
