package domain

import "time"

// ScoredPost is a post scored on request by one model and kept for daily
// sentiment lookups.
type ScoredPost struct {
	PostID    string
	Ticker    string
	Model     string
	Title     string
	Body      string
	Subreddit string
	Label     string   // raw oracle label
	Polarity  Polarity // derived from Label
	Score     float64
	CreatedAt time.Time // UTC
}

// Date returns the calendar date the post counts toward.
func (p *ScoredPost) Date() time.Time {
	return DateOf(p.CreatedAt)
}
