package market

import "wsb-sentiment-lab/internal/domain"

// AlignStats counts how signals fared during alignment.
type AlignStats struct {
	Signals     int
	Aligned     int
	NoClose     int // signal date is not a trading day
	NoNextClose int // no following trading day in the fetched range
}

// Dropped returns the number of signals without an evaluation row.
func (s AlignStats) Dropped() int {
	return s.NoClose + s.NoNextClose
}

// Align matches each signal with the close on its date and the close of the
// next trading day. Signals without both closes are dropped, not reported
// as errors. Output keeps the input order.
func Align(cal *Calendar, signals []domain.DailySignal) ([]domain.EvaluationRow, AlignStats) {
	stats := AlignStats{Signals: len(signals)}
	rows := make([]domain.EvaluationRow, 0, len(signals))

	for _, sig := range signals {
		closeT, ok := cal.Close(sig.Ticker, sig.Date)
		if !ok {
			stats.NoClose++
			continue
		}
		nextDate, closeT1, ok := cal.Next(sig.Ticker, sig.Date)
		if !ok {
			stats.NoNextClose++
			continue
		}

		realized := Realized(closeT, closeT1)
		rows = append(rows, domain.EvaluationRow{
			DailySignal:       sig,
			NextTradingDate:   nextDate,
			CloseT:            closeT,
			CloseT1:           closeT1,
			RealizedDirection: realized,
			Correct:           realized == sig.Signal,
		})
		stats.Aligned++
	}

	return rows, stats
}

// Realized returns the direction of the move from closeT to closeT1.
// Equal closes are flat (neutral).
func Realized(closeT, closeT1 float64) domain.Direction {
	switch {
	case closeT1 > closeT:
		return domain.DirectionUp
	case closeT1 < closeT:
		return domain.DirectionDown
	default:
		return domain.DirectionNeutral
	}
}
