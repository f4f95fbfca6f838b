package domain

import "time"

// Run outcomes.
const (
	OutcomeCompleted     = "completed"
	OutcomeNoRecords     = "no_records"
	OutcomeNoAlignedRows = "no_aligned_rows"
)

// Run is the persisted metadata of one backtest run.
type Run struct {
	RunID       string // deterministic hash of the run configuration
	StartDate   time.Time
	EndDate     time.Time
	Tickers     []string
	Models      []string
	Outcome     string
	RowsKept    int
	RowsAligned int
	Latency     []ModelLatency
	CreatedAt   time.Time
}
