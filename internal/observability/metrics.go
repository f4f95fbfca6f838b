// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Corpus row outcomes.
const (
	RowKept         = "kept"
	RowBadTimestamp = "bad_timestamp"
	RowOutOfRange   = "out_of_range"
	RowUnmatched    = "unmatched"
	RowAmbiguous    = "ambiguous"
)

// Alignment drop reasons.
const (
	DropNoClose     = "no_close"
	DropNoNextClose = "no_next_close"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics records nothing.
type Metrics struct {
	// Corpus metrics
	CorpusRows    *prometheus.CounterVec
	CorpusWindows prometheus.Counter

	// Oracle metrics
	OracleBatches      *prometheus.CounterVec
	OracleTexts        *prometheus.CounterVec
	OracleErrors       *prometheus.CounterVec
	OracleBatchLatency *prometheus.HistogramVec
	SecondsPerText     *prometheus.GaugeVec

	// Alignment metrics
	RowsAligned prometheus.Counter
	RowsDropped *prometheus.CounterVec

	// Evaluation metrics
	ModelAccuracy *prometheus.GaugeVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wsb_sentiment_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		CorpusRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "rows_total",
			Help:      "Corpus rows read, by outcome",
		}, []string{"outcome"}),
		CorpusWindows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "windows_total",
			Help:      "Corpus windows read",
		}),

		OracleBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "batches_total",
			Help:      "Batches sent to the sentiment oracle",
		}, []string{"model"}),
		OracleTexts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "texts_total",
			Help:      "Texts scored by the sentiment oracle",
		}, []string{"model"}),
		OracleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "errors_total",
			Help:      "Failed oracle batches",
		}, []string{"model"}),
		OracleBatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "batch_duration_seconds",
			Help:      "Oracle batch round-trip latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),
		SecondsPerText: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "seconds_per_text",
			Help:      "Mean scoring wall time per text of the last run",
		}, []string{"model"}),

		RowsAligned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "rows_aligned_total",
			Help:      "Daily signals matched to a next trading day",
		}),
		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "rows_dropped_total",
			Help:      "Daily signals dropped during alignment, by reason",
		}, []string{"reason"}),

		ModelAccuracy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "directional_accuracy",
			Help:      "Directional accuracy of the last run",
		}, []string{"model"}),

		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Backtest runs by outcome",
		}, []string{"outcome"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Failed database queries",
		}, []string{"database", "operation"}),
	}
}

// RecordCorpusRow counts one corpus row by outcome.
func (m *Metrics) RecordCorpusRow(outcome string) {
	if m == nil {
		return
	}
	m.CorpusRows.WithLabelValues(outcome).Inc()
}

// RecordCorpusWindow counts one corpus window.
func (m *Metrics) RecordCorpusWindow() {
	if m == nil {
		return
	}
	m.CorpusWindows.Inc()
}

// RecordOracleBatch records one oracle round trip.
func (m *Metrics) RecordOracleBatch(model string, texts int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.OracleBatches.WithLabelValues(model).Inc()
	m.OracleBatchLatency.WithLabelValues(model).Observe(d.Seconds())
	if err != nil {
		m.OracleErrors.WithLabelValues(model).Inc()
		return
	}
	m.OracleTexts.WithLabelValues(model).Add(float64(texts))
}

// RecordSecondsPerText sets the latency gauge of a model.
func (m *Metrics) RecordSecondsPerText(model string, v float64) {
	if m == nil {
		return
	}
	m.SecondsPerText.WithLabelValues(model).Set(v)
}

// RecordAlignment records aligned and dropped signal counts.
func (m *Metrics) RecordAlignment(aligned, noClose, noNextClose int) {
	if m == nil {
		return
	}
	m.RowsAligned.Add(float64(aligned))
	m.RowsDropped.WithLabelValues(DropNoClose).Add(float64(noClose))
	m.RowsDropped.WithLabelValues(DropNoNextClose).Add(float64(noNextClose))
}

// RecordAccuracy sets the accuracy gauge of a model.
func (m *Metrics) RecordAccuracy(model string, v float64) {
	if m == nil {
		return
	}
	m.ModelAccuracy.WithLabelValues(model).Set(v)
}

// RecordPipelineRun counts a finished run.
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordPhase observes the duration of a pipeline phase.
func (m *Metrics) RecordPhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Handler returns an HTTP handler exposing the metrics of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
