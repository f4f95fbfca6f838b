// Package posts scores ad-hoc posts on request and summarizes the stored
// verdicts per calendar day.
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/idhash"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/sentiment"
	"wsb-sentiment-lab/internal/signal"
	"wsb-sentiment-lab/internal/storage"
)

var (
	// ErrNoPosts is returned when an analyse request carries no posts.
	ErrNoPosts = errors.New("no posts provided")

	// ErrNoTicker is returned when an analyse request names no ticker.
	ErrNoTicker = errors.New("no ticker provided")
)

// Scorer scores attributed records with one model.
type Scorer interface {
	Score(ctx context.Context, model string, records []domain.AttributedRecord) (*sentiment.Scored, error)
}

var _ Scorer = (*sentiment.Client)(nil)

// Input is one post submitted for scoring.
type Input struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Subreddit string `json:"subreddit"`
}

// Daily is one day of stored verdicts for a ticker under one model.
type Daily struct {
	Date          string  `json:"date"`
	Ticker        string  `json:"ticker"`
	Model         string  `json:"modelUsed"`
	AverageScore  float64 `json:"averageScore"`
	MeanPolarity  float64 `json:"meanPolarity"`
	Signal        string  `json:"signal"`
	PositiveCount int     `json:"positiveCount"`
	NeutralCount  int     `json:"neutralCount"`
	NegativeCount int     `json:"negativeCount"`
	TotalPosts    int     `json:"totalPosts"`
}

// Service scores posts and reads back daily summaries.
type Service struct {
	scorer       Scorer
	store        storage.PostStore
	defaultModel string
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a Service. defaultModel is used when a request names
// no model.
func NewService(scorer Scorer, store storage.PostStore, defaultModel string, log *logger.Logger) *Service {
	return &Service{
		scorer:       scorer,
		store:        store,
		defaultModel: defaultModel,
		log:          log,
		now:          time.Now,
	}
}

// WithClock sets the clock used to stamp scored posts.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Analyse scores every input with model and stores the results. Posts are
// returned in input order.
func (s *Service) Analyse(ctx context.Context, ticker, model string, inputs []Input) ([]*domain.ScoredPost, error) {
	if len(inputs) == 0 {
		return nil, ErrNoPosts
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrNoTicker
	}
	if model == "" {
		model = s.defaultModel
	}

	createdAt := s.now().UTC()
	records := make([]domain.AttributedRecord, len(inputs))
	for i, in := range inputs {
		records[i] = domain.AttributedRecord{
			Date:   domain.DateOf(createdAt),
			Ticker: ticker,
			Text:   strings.TrimSpace(strings.TrimSpace(in.Title) + " " + strings.TrimSpace(in.Body)),
		}
	}

	scored, err := s.scorer.Score(ctx, model, records)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ScoredPost, len(inputs))
	for i, in := range inputs {
		r := scored.Records[i]
		out[i] = &domain.ScoredPost{
			PostID:    idhash.ComputePostID(model, ticker, createdAt, i, in.Title, in.Body),
			Ticker:    ticker,
			Model:     model,
			Title:     in.Title,
			Body:      in.Body,
			Subreddit: in.Subreddit,
			Label:     r.Label,
			Polarity:  r.Polarity,
			Score:     r.Score,
			CreatedAt: createdAt,
		}
	}

	if err := s.store.InsertBulk(ctx, out); err != nil {
		return nil, fmt.Errorf("store %d scored posts: %w", len(out), err)
	}

	s.log.Info(ctx, "posts analysed", "ticker", ticker, "model", model, "count", len(out))
	return out, nil
}

// Daily summarizes a ticker's stored posts per (date, model), ordered by
// date then model. An empty model summarizes every model.
func (s *Service) Daily(ctx context.Context, ticker, model string) ([]Daily, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	stored, err := s.store.GetByTicker(ctx, ticker, model)
	if err != nil {
		return nil, fmt.Errorf("load posts for %s: %w", ticker, err)
	}

	byModel := make(map[string][]domain.ScoredRecord)
	for _, p := range stored {
		byModel[p.Model] = append(byModel[p.Model], domain.ScoredRecord{
			AttributedRecord: domain.AttributedRecord{Date: p.Date(), Ticker: p.Ticker},
			Label:            p.Label,
			Polarity:         p.Polarity,
			Score:            p.Score,
		})
	}

	out := make([]Daily, 0)
	for m, records := range byModel {
		for _, sig := range signal.Aggregate(records) {
			out = append(out, Daily{
				Date:          domain.FormatDate(sig.Date),
				Ticker:        sig.Ticker,
				Model:         m,
				AverageScore:  sig.MeanScore,
				MeanPolarity:  signal.MeanPolarity(sig),
				Signal:        sig.Signal.String(),
				PositiveCount: sig.PositiveCount,
				NeutralCount:  sig.NeutralCount,
				NegativeCount: sig.NegativeCount,
				TotalPosts:    sig.PostCount,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}
