package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/posts"
	"wsb-sentiment-lab/internal/sentiment"
)

type analyseRequest struct {
	Posts  []posts.Input `json:"posts"`
	Ticker string        `json:"ticker"`
	Model  string        `json:"model"`
}

type postView struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Subreddit      string    `json:"subreddit"`
	Sentiment      string    `json:"sentiment"`
	SentimentScore float64   `json:"sentimentScore"`
	ModelUsed      string    `json:"modelUsed"`
	CreatedAt      time.Time `json:"createdAt"`
}

// POST /api/sentiment/analyse {"posts":[{"title":"..","body":"..","subreddit":".."}],"ticker":"TSLA","model":"finbert"}
func (s *Server) analyse(c *gin.Context) {
	var req analyseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Posts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No posts provided"})
		return
	}

	scored, err := s.sentiment.Analyse(c.Request.Context(), req.Ticker, req.Model, req.Posts)
	if err != nil {
		var batchErr *sentiment.BatchError
		switch {
		case errors.Is(err, posts.ErrNoTicker):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No ticker provided"})
		case errors.As(err, &batchErr):
			s.fail(c, http.StatusBadGateway, "Sentiment analysis failed", err)
		default:
			s.fail(c, http.StatusInternalServerError, "Sentiment analysis failed", err)
		}
		return
	}

	data := make([]postView, 0, len(scored))
	for _, p := range scored {
		data = append(data, viewPost(p))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Sentiment analysis completed",
		"count":   len(data),
		"data":    data,
	})
}

// GET /api/sentiment/daily/TSLA?model=finbert
func (s *Server) daily(c *gin.Context) {
	daily, err := s.sentiment.Daily(c.Request.Context(), c.Param("ticker"), c.Query("model"))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to load daily sentiment", err)
		return
	}
	c.JSON(http.StatusOK, daily)
}

func viewPost(p *domain.ScoredPost) postView {
	return postView{
		ID:             p.PostID,
		Ticker:         p.Ticker,
		Title:          p.Title,
		Body:           p.Body,
		Subreddit:      p.Subreddit,
		Sentiment:      p.Label,
		SentimentScore: p.Score,
		ModelUsed:      p.Model,
		CreatedAt:      p.CreatedAt,
	}
}
