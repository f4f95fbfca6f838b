package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prediction is the oracle's verdict for one text.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Oracle scores one batch of texts with a model. The reply must have one
// prediction per text, in input order.
type Oracle interface {
	Predict(ctx context.Context, model string, texts []string) ([]Prediction, error)
}

type predictPost struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type predictRequest struct {
	Model string        `json:"model"`
	Posts []predictPost `json:"posts"`
}

type predictResponse struct {
	Model       string        `json:"model"`
	Predictions []*Prediction `json:"predictions"`
}

// maxErrorBody bounds how much of a failed reply is kept in StatusError.
const maxErrorBody = 512

// HTTPOracle calls a prediction service over HTTP.
type HTTPOracle struct {
	url    string
	client *http.Client
}

// NewHTTPOracle creates an oracle posting to url with a per-request timeout.
func NewHTTPOracle(url string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the HTTP client.
func (o *HTTPOracle) WithHTTPClient(c *http.Client) *HTTPOracle {
	o.client = c
	return o
}

// Predict posts {model, posts:[{title, body}]} and decodes the predictions.
// Each text is sent as a title with an empty body.
func (o *HTTPOracle) Predict(ctx context.Context, model string, texts []string) ([]Prediction, error) {
	req := predictRequest{Model: model, Posts: make([]predictPost, len(texts))}
	for i, t := range texts {
		req.Posts[i] = predictPost{Title: t}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", o.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if out.Predictions == nil {
		return nil, fmt.Errorf("%w: missing predictions", ErrMalformedReply)
	}
	if len(out.Predictions) != len(texts) {
		return nil, fmt.Errorf("%w: got %d predictions for %d texts", ErrMalformedReply, len(out.Predictions), len(texts))
	}

	preds := make([]Prediction, len(out.Predictions))
	for i, p := range out.Predictions {
		if p == nil {
			return nil, fmt.Errorf("%w: prediction %d is null", ErrMalformedReply, i)
		}
		preds[i] = *p
	}
	return preds, nil
}

var _ Oracle = (*HTTPOracle)(nil)
