package reporting

import (
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
)

// Report represents a backtest run report.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Run         domain.Run

	// Per-model accuracy and latency (models in run order)
	Summary evaluation.Summary

	// Dashboard view of the same table
	Dashboard Dashboard
}
