// Package sentiment scores attributed texts with an external prediction
// oracle in fixed-size batches.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/logger"
)

// DefaultBatchSize is the number of texts per oracle request.
const DefaultBatchSize = 64

// emptyPlaceholder replaces texts that are empty after trimming.
const emptyPlaceholder = " "

// Client splits texts into batches and sends them to an Oracle one at a time.
type Client struct {
	oracle    Oracle
	batchSize int
	log       *logger.Logger
	now       func() time.Time
}

// NewClient creates a Client. A non-positive batchSize uses DefaultBatchSize.
func NewClient(oracle Oracle, batchSize int, log *logger.Logger) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		oracle:    oracle,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// WithClock sets the clock used for latency accounting.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Scored is the output of one model run.
type Scored struct {
	Records []domain.ScoredRecord // same order as the input
	Latency domain.ModelLatency
}

// Predict returns one prediction per text, in input order.
func (c *Client) Predict(ctx context.Context, model string, texts []string) ([]Prediction, error) {
	out := make([]Prediction, 0, len(texts))
	for batch, offset := 0, 0; offset < len(texts); batch, offset = batch+1, offset+c.batchSize {
		end := min(offset+c.batchSize, len(texts))
		chunk := make([]string, end-offset)
		for i, t := range texts[offset:end] {
			if strings.TrimSpace(t) == "" {
				t = emptyPlaceholder
			}
			chunk[i] = t
		}

		preds, err := c.oracle.Predict(ctx, model, chunk)
		if err == nil && len(preds) != len(chunk) {
			err = fmt.Errorf("%w: got %d predictions for %d texts", ErrMalformedReply, len(preds), len(chunk))
		}
		if err != nil {
			return nil, &BatchError{Model: model, Batch: batch, Offset: offset, Size: len(chunk), Err: err}
		}
		out = append(out, preds...)
	}
	return out, nil
}

// Score runs every record through model. Labels are mapped to a polarity
// here and nowhere else. Latency is total wall time divided by text count.
func (c *Client) Score(ctx context.Context, model string, records []domain.AttributedRecord) (*Scored, error) {
	if model == "" {
		return nil, errors.New("model identifier is empty")
	}

	op := c.log.StartOperation(ctx, "sentiment.score", "model", model, "texts", len(records))
	ctx = op.Context()

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	start := c.now()
	preds, err := c.Predict(ctx, model, texts)
	elapsed := c.now().Sub(start)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	scored := make([]domain.ScoredRecord, len(records))
	for i, r := range records {
		scored[i] = domain.ScoredRecord{
			AttributedRecord: r,
			Label:            preds[i].Label,
			Polarity:         domain.ParsePolarity(preds[i].Label),
			Score:            preds[i].Score,
		}
	}

	latency := domain.ModelLatency{Model: model, TextCount: len(records), Elapsed: elapsed}
	if len(records) > 0 {
		latency.SecPerText = elapsed.Seconds() / float64(len(records))
	}

	op.End("sec_per_text", latency.SecPerText)
	c.log.Info(ctx, "model scored", "model", model, "texts", len(records), "sec_per_text", latency.SecPerText)
	return &Scored{Records: scored, Latency: latency}, nil
}
