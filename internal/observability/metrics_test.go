package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Two instances on separate registries must not collide.
	m1 := NewMetrics("", prometheus.NewRegistry())
	m2 := NewMetrics("", prometheus.NewRegistry())
	require.NotNil(t, m1)
	require.NotNil(t, m2)
}

func TestRecordCorpusRow(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordCorpusRow(RowKept)
	m.RecordCorpusRow(RowKept)
	m.RecordCorpusRow(RowAmbiguous)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorpusRows.WithLabelValues(RowKept)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorpusRows.WithLabelValues(RowAmbiguous)))
}

func TestRecordOracleBatch(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordOracleBatch("lr", 64, 100*time.Millisecond, nil)
	m.RecordOracleBatch("lr", 10, 50*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OracleBatches.WithLabelValues("lr")))
	assert.Equal(t, 64.0, testutil.ToFloat64(m.OracleTexts.WithLabelValues("lr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleErrors.WithLabelValues("lr")))
}

func TestRecordAlignment(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.RecordAlignment(5, 2, 1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.RowsAligned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues(DropNoClose)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues(DropNoNextClose)))
}

func TestNilMetrics_IsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCorpusRow(RowKept)
	m.RecordCorpusWindow()
	m.RecordOracleBatch("x", 1, time.Second, nil)
	m.RecordAccuracy("x", 0.5)
	m.RecordPipelineRun("completed")
	m.RecordDBQuery("postgres", "insert", time.Millisecond, nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordAccuracy("distilbert", 0.55)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_evaluation_directional_accuracy{model="distilbert"} 0.55`)
}
