// Package api serves backtest results and on-demand sentiment over HTTP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/observability"
	"wsb-sentiment-lab/internal/posts"
	"wsb-sentiment-lab/internal/reporting"
)

// Results is the read side of stored backtest runs.
type Results interface {
	Latest(ctx context.Context) (string, error)
	Runs(ctx context.Context) ([]*domain.Run, error)
	Table(ctx context.Context, runID string) (*evaluation.Table, error)
	Generate(ctx context.Context, runID string) (*reporting.Report, error)
}

var _ Results = (*reporting.Generator)(nil)

// Sentiment scores submitted posts and summarizes stored ones.
type Sentiment interface {
	Analyse(ctx context.Context, ticker, model string, inputs []posts.Input) ([]*domain.ScoredPost, error)
	Daily(ctx context.Context, ticker, model string) ([]posts.Daily, error)
}

var _ Sentiment = (*posts.Service)(nil)

// Server holds handler dependencies.
type Server struct {
	results   Results
	sentiment Sentiment
	log       *logger.Logger
}

// NewRouter builds the gin engine. gatherer may be nil, in which case
// /metrics is not mounted; the /api/sentiment routes need a non-nil sentiment.
func NewRouter(results Results, sentiment Sentiment, gatherer prometheus.Gatherer, log *logger.Logger) *gin.Engine {
	s := &Server{results: results, sentiment: sentiment, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.Handler(gatherer)))
	}

	api := r.Group("/api")
	{
		api.GET("/runs", s.listRuns)
		api.GET("/dashboard/summary", s.dashboardSummary)
		api.GET("/backtest/rows", s.backtestRows)
		api.POST("/backtest/run", s.backtestRun)
	}

	if sentiment != nil {
		sg := r.Group("/api/sentiment")
		sg.POST("/analyse", s.analyse)
		sg.GET("/daily/:ticker", s.daily)
	}

	return r
}
