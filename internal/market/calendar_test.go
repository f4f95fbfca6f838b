package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsb-sentiment-lab/internal/domain"
)

func date(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Mon, Tue, Thu: Wednesday 2022-04-13 is treated as a market holiday.
func sparseWeek() []domain.PricePoint {
	return []domain.PricePoint{
		{Ticker: "TSLA", Date: date("2022-04-14"), Close: 103},
		{Ticker: "TSLA", Date: date("2022-04-11"), Close: 100},
		{Ticker: "TSLA", Date: date("2022-04-12"), Close: 101},
	}
}

func TestCalendar_NextSkipsMissingDays(t *testing.T) {
	cal := NewCalendar(sparseWeek())

	next, closePx, ok := cal.Next("TSLA", date("2022-04-12"))
	require.True(t, ok)
	assert.Equal(t, date("2022-04-14"), next)
	assert.Equal(t, 103.0, closePx)

	next, _, ok = cal.Next("TSLA", date("2022-04-11"))
	require.True(t, ok)
	assert.Equal(t, date("2022-04-12"), next)
}

func TestCalendar_NonTradingDay(t *testing.T) {
	cal := NewCalendar(sparseWeek())

	_, ok := cal.Close("TSLA", date("2022-04-13"))
	assert.False(t, ok)

	_, _, ok = cal.Next("TSLA", date("2022-04-13"))
	assert.False(t, ok, "next is only defined from a trading day")
}

func TestCalendar_LastDayHasNoNext(t *testing.T) {
	cal := NewCalendar(sparseWeek())

	_, _, ok := cal.Next("TSLA", date("2022-04-14"))
	assert.False(t, ok)
}

func TestCalendar_UnknownTicker(t *testing.T) {
	cal := NewCalendar(sparseWeek())

	_, ok := cal.Close("NVDA", date("2022-04-11"))
	assert.False(t, ok)
	assert.Equal(t, 0, cal.Len("NVDA"))
}

func TestCalendar_IntradayDatesAndDuplicates(t *testing.T) {
	cal := NewCalendar([]domain.PricePoint{
		{Ticker: "GME", Date: time.Date(2022, 4, 11, 20, 0, 0, 0, time.UTC), Close: 150},
		{Ticker: "GME", Date: date("2022-04-11"), Close: 999},
		{Ticker: "GME", Date: date("2022-04-12"), Close: math.NaN()},
	})

	closePx, ok := cal.Close("GME", date("2022-04-11"))
	require.True(t, ok)
	assert.Equal(t, 150.0, closePx, "first point wins")
	assert.Equal(t, 1, cal.Len("GME"), "NaN close skipped")
}

func TestCalendar_Points(t *testing.T) {
	points := append(sparseWeek(), domain.PricePoint{Ticker: "AAPL", Date: date("2022-04-11"), Close: 165})
	cal := NewCalendar(points)

	got := cal.Points()
	require.Len(t, got, 4)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.Equal(t, date("2022-04-11"), got[1].Date)
	assert.Equal(t, date("2022-04-14"), got[3].Date)
	assert.Equal(t, []string{"AAPL", "TSLA"}, cal.Tickers())
}
