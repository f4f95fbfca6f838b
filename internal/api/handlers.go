package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/reporting"
	"wsb-sentiment-lab/internal/storage"
)

type summaryResponse struct {
	RunID string `json:"runId"`
	reporting.Dashboard
}

type runView struct {
	RunID       string    `json:"runId"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Tickers     []string  `json:"tickers"`
	Models      []string  `json:"models"`
	Outcome     string    `json:"outcome"`
	RowsKept    int       `json:"rowsKept"`
	RowsAligned int       `json:"rowsAligned"`
	CreatedAt   time.Time `json:"createdAt"`
}

type rowsRequest struct {
	Run    string `json:"run" form:"run"`
	Model  string `json:"model" form:"model"`
	Ticker string `json:"ticker" form:"ticker"`
	Start  string `json:"start" form:"start"`
	End    string `json:"end" form:"end"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.results.Runs(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	out := make([]runView, 0, len(runs))
	for _, r := range runs {
		out = append(out, runView{
			RunID:       r.RunID,
			Start:       domain.FormatDate(r.StartDate),
			End:         domain.FormatDate(r.EndDate),
			Tickers:     r.Tickers,
			Models:      r.Models,
			Outcome:     r.Outcome,
			RowsKept:    r.RowsKept,
			RowsAligned: r.RowsAligned,
			CreatedAt:   r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) dashboardSummary(c *gin.Context) {
	runID, ok := s.resolveRun(c, c.Query("run"))
	if !ok {
		return
	}

	report, err := s.results.Generate(c.Request.Context(), runID)
	if err != nil {
		s.failLookup(c, "Failed to build dashboard summary", err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{RunID: runID, Dashboard: report.Dashboard})
}

// GET /api/backtest/rows?run=&model=lr&ticker=TSLA&start=2022-04-01&end=2022-12-31
func (s *Server) backtestRows(c *gin.Context) {
	var req rowsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.rows(c, req)
}

// POST /api/backtest/run takes the same filter as a JSON body.
func (s *Server) backtestRun(c *gin.Context) {
	var req rowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.rows(c, req)
}

func (s *Server) rows(c *gin.Context, req rowsRequest) {
	runID, ok := s.resolveRun(c, req.Run)
	if !ok {
		return
	}

	table, err := s.results.Table(c.Request.Context(), runID)
	if err != nil {
		s.failLookup(c, "Failed to load backtest rows", err)
		return
	}

	rows, err := reporting.QueryRows(table, reporting.RowFilter{
		Model:  req.Model,
		Ticker: req.Ticker,
		Start:  req.Start,
		End:    req.End,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrUnknownModel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown model: %s", req.Model)})
			return
		}
		s.fail(c, http.StatusInternalServerError, "Failed to load backtest rows", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// resolveRun returns runID, or the latest stored run when runID is empty.
func (s *Server) resolveRun(c *gin.Context, runID string) (string, bool) {
	if runID != "" {
		return runID, true
	}
	latest, err := s.results.Latest(c.Request.Context())
	if err != nil {
		s.failLookup(c, "Failed to find latest run", err)
		return "", false
	}
	return latest, true
}

func (s *Server) failLookup(c *gin.Context, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	s.fail(c, http.StatusInternalServerError, msg, err)
}

func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	s.log.ErrorWithErr(c.Request.Context(), msg, err, "path", c.FullPath())
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
