package domain

import "time"

// PricePoint is one daily close. Only trading days have points.
type PricePoint struct {
	Ticker string
	Date   time.Time
	Close  float64
}
