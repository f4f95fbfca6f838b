package sentiment

import (
	"context"
	"time"

	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/observability"
)

// observedOracle wraps an Oracle with logging, tracing and metrics.
type observedOracle struct {
	oracle  Oracle
	metrics *observability.Metrics
	log     *logger.Logger
}

var _ Oracle = (*observedOracle)(nil)

// Observe wraps oracle with observability middleware.
func Observe(oracle Oracle, metrics *observability.Metrics, log *logger.Logger) Oracle {
	return &observedOracle{oracle: oracle, metrics: metrics, log: log}
}

func (o *observedOracle) Predict(ctx context.Context, model string, texts []string) ([]Prediction, error) {
	op := o.log.StartOperation(ctx, "oracle.predict", "model", model, "texts", len(texts))

	start := time.Now()
	preds, err := o.oracle.Predict(op.Context(), model, texts)
	d := time.Since(start)
	o.metrics.RecordOracleBatch(model, len(texts), d, err)

	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	op.End("predictions", len(preds))
	return preds, nil
}
