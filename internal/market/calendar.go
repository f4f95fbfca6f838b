// Package market aligns daily signals with trading-day closes.
package market

import (
	"math"
	"sort"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// series is one ticker's trading-day index, dates ascending.
type series struct {
	dates  []time.Time
	closes []float64
	pos    map[time.Time]int
}

// Calendar is a per-ticker trading-day index built from daily closes.
// Only dates with a quoted close exist in the index. Read-only after construction.
type Calendar struct {
	byTicker map[string]*series
}

// NewCalendar indexes points by ticker and date.
// Points with a non-finite close are skipped. For duplicate (ticker, date)
// pairs the first point wins.
func NewCalendar(points []domain.PricePoint) *Calendar {
	grouped := make(map[string][]domain.PricePoint)
	for _, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		p.Date = domain.DateOf(p.Date)
		grouped[p.Ticker] = append(grouped[p.Ticker], p)
	}

	c := &Calendar{byTicker: make(map[string]*series, len(grouped))}
	for ticker, pts := range grouped {
		sort.SliceStable(pts, func(i, j int) bool {
			return pts[i].Date.Before(pts[j].Date)
		})

		s := &series{pos: make(map[time.Time]int, len(pts))}
		for _, p := range pts {
			if _, dup := s.pos[p.Date]; dup {
				continue
			}
			s.pos[p.Date] = len(s.dates)
			s.dates = append(s.dates, p.Date)
			s.closes = append(s.closes, p.Close)
		}
		c.byTicker[ticker] = s
	}
	return c
}

// Close returns the quoted close of ticker on date.
// ok is false when date is not a trading day for ticker.
func (c *Calendar) Close(ticker string, date time.Time) (float64, bool) {
	s, ok := c.byTicker[ticker]
	if !ok {
		return 0, false
	}
	i, ok := s.pos[domain.DateOf(date)]
	if !ok {
		return 0, false
	}
	return s.closes[i], true
}

// Next returns the trading day following date in ticker's index.
// date must itself be a trading day; the result is the next index position,
// never date+1 on the calendar.
func (c *Calendar) Next(ticker string, date time.Time) (time.Time, float64, bool) {
	s, ok := c.byTicker[ticker]
	if !ok {
		return time.Time{}, 0, false
	}
	i, ok := s.pos[domain.DateOf(date)]
	if !ok || i+1 >= len(s.dates) {
		return time.Time{}, 0, false
	}
	return s.dates[i+1], s.closes[i+1], true
}

// Tickers returns the indexed tickers, sorted.
func (c *Calendar) Tickers() []string {
	out := make([]string, 0, len(c.byTicker))
	for t := range c.byTicker {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed trading days for ticker.
func (c *Calendar) Len(ticker string) int {
	if s, ok := c.byTicker[ticker]; ok {
		return len(s.dates)
	}
	return 0
}

// Points returns all indexed points ordered by ticker, then date.
func (c *Calendar) Points() []domain.PricePoint {
	var out []domain.PricePoint
	for _, t := range c.Tickers() {
		s := c.byTicker[t]
		for i, d := range s.dates {
			out = append(out, domain.PricePoint{Ticker: t, Date: d, Close: s.closes[i]})
		}
	}
	return out
}
