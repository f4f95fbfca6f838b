package market

import (
	"context"
	"errors"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// ErrNoPriceData is returned when a feed yields no closes for a request.
var ErrNoPriceData = errors.New("no price data available")

// Feed provides daily closes. Only trading days are returned.
type Feed interface {
	// Closes returns closes for tickers on calendar dates within [start, end] (inclusive).
	Closes(ctx context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error)
}

// FetchRange widens a signal window so the last signal dates still have a
// following trading day: [start, end+buffer].
func FetchRange(start, end time.Time, buffer time.Duration) (time.Time, time.Time) {
	return domain.DateOf(start), domain.DateOf(end.Add(buffer))
}

// inRange reports whether date falls within [start, end] by calendar date.
func inRange(date, start, end time.Time) bool {
	d := domain.DateOf(date)
	return !d.Before(domain.DateOf(start)) && !d.After(domain.DateOf(end))
}

// wanted builds a set of requested tickers. An empty request matches all.
func wanted(tickers []string) func(string) bool {
	if len(tickers) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[t] = struct{}{}
	}
	return func(t string) bool {
		_, ok := set[t]
		return ok
	}
}
