package domain

import "time"

// EvaluationRow is a DailySignal matched to the close on its date and on
// the next trading day.
type EvaluationRow struct {
	DailySignal

	NextTradingDate   time.Time
	CloseT            float64
	CloseT1           float64
	RealizedDirection Direction
	Correct           bool // RealizedDirection == Signal
}

// ModelLatency is the scoring cost of one model run.
type ModelLatency struct {
	Model      string
	TextCount  int
	Elapsed    time.Duration
	SecPerText float64
}

// EvaluationRecord is one model's evaluation row as persisted for a run.
type EvaluationRecord struct {
	RowID string // deterministic hash of (run, model, date, ticker)
	RunID string
	Model string
	EvaluationRow
}
