package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/observability"
	"wsb-sentiment-lab/internal/ticker"
)

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newStreamer(t *testing.T, path string, window int) *Streamer {
	t.Helper()
	m, err := ticker.NewMatcher(ticker.Aliases([]string{"TSLA", "AAPL", "MSFT", "NVDA", "AMD", "GME"}, nil))
	require.NoError(t, err)

	return NewStreamer(Options{
		Path:       path,
		Start:      time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		WindowSize: window,
	}, m, nil, nil)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStream_SingleTickerAttribution(t *testing.T) {
	path := writeCorpus(t, `id,timestamp,title,body
1,2022-04-04T10:00,TSLA to the moon,
2,2022-04-04T11:00,TSLA and NVDA are great,
`)
	s := newStreamer(t, path, 100)

	records, stats, err := s.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, domain.AttributedRecord{Date: date(2022, 4, 4), Ticker: "TSLA", Text: "TSLA to the moon"}, records[0])
	assert.Equal(t, 2, stats.RowsRead)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 1, stats.Ambiguous)
}

func TestStream_FiltersAndCounts(t *testing.T) {
	path := writeCorpus(t, `timestamp,title,body
not-a-date,TSLA rips,
2022-03-31 23:59:59,TSLA rips,
2022-04-01 00:00:00,,Tesla deliveries
2022-12-31T15:00:00,GME,
2023-01-01,GME,
2022-06-01,nothing here,
2022-06-02,$AMD and $NVDA,
`)
	s := newStreamer(t, path, 100)

	records, stats, err := s.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "TSLA", records[0].Ticker)
	assert.Equal(t, "Tesla deliveries", records[0].Text, "empty title must not leave a leading space")
	assert.Equal(t, date(2022, 4, 1), records[0].Date)
	assert.Equal(t, "GME", records[1].Ticker)
	assert.Equal(t, date(2022, 12, 31), records[1].Date, "end date is inclusive")

	assert.Equal(t, Stats{
		Windows:      1,
		RowsRead:     7,
		BadTimestamp: 1,
		OutOfRange:   2,
		Unmatched:    1,
		Ambiguous:    1,
		Kept:         2,
	}, stats)
}

func TestStream_WindowSizeDoesNotChangeOutput(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("timestamp,title,body\n")
	for i := 0; i < 25; i++ {
		tk := []string{"TSLA", "AAPL", "GME", "TSLA NVDA", "hello"}[i%5]
		sb.WriteString("2022-05-0" + string(rune('1'+i%9)) + "T09:00," + tk + " post,body\n")
	}
	path := writeCorpus(t, sb.String())

	big, bigStats, err := newStreamer(t, path, 1000).Collect(context.Background())
	require.NoError(t, err)
	small, smallStats, err := newStreamer(t, path, 4).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, big, small)
	assert.Equal(t, 1, bigStats.Windows)
	assert.Equal(t, 7, smallStats.Windows) // ceil(25/4)
	assert.Equal(t, 15, smallStats.Kept)
}

func TestStream_Restartable(t *testing.T) {
	path := writeCorpus(t, "timestamp,title\n2022-04-05,AAPL\n2022-04-06,MSFT\n")
	s := newStreamer(t, path, 1)

	first, _, err := s.Collect(context.Background())
	require.NoError(t, err)
	second, _, err := s.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
}

func TestStream_MissingTimestampColumn(t *testing.T) {
	path := writeCorpus(t, "created,title\n2022-04-05,AAPL\n")
	s := newStreamer(t, path, 10)

	emitted := 0
	_, err := s.Stream(context.Background(), func(domain.AttributedRecord) error {
		emitted++
		return nil
	})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Zero(t, emitted, "no row may be processed after a configuration error")
}

func TestStream_MissingFile(t *testing.T) {
	s := newStreamer(t, filepath.Join(t.TempDir(), "absent.csv"), 10)

	_, _, err := s.Collect(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStream_EmptyFileAndBadWindow(t *testing.T) {
	_, _, err := newStreamer(t, writeCorpus(t, ""), 10).Collect(context.Background())
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, _, err = newStreamer(t, writeCorpus(t, "timestamp\n"), 0).Collect(context.Background())
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStream_HeaderOnlyYieldsNothing(t *testing.T) {
	records, stats, err := newStreamer(t, writeCorpus(t, "timestamp,title,body\n"), 10).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, stats.Windows)
}

func TestStream_BOMHeaderAndQuotedBody(t *testing.T) {
	path := writeCorpus(t, "\ufefftimestamp,title,body\n"+
		`2022-07-01T12:00:00Z,"Earnings","NVIDIA, again
multi-line body"`+"\n")

	records, _, err := newStreamer(t, path, 10).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "NVDA", records[0].Ticker)
	assert.Equal(t, "Earnings NVIDIA, again\nmulti-line body", records[0].Text)
}

func TestStream_EmitErrorStops(t *testing.T) {
	path := writeCorpus(t, "timestamp,title\n2022-04-05,AAPL\n2022-04-06,MSFT\n2022-04-07,GME\n")
	s := newStreamer(t, path, 1)

	stop := errors.New("stop")
	calls := 0
	_, err := s.Stream(context.Background(), func(domain.AttributedRecord) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStream_RecordsMetrics(t *testing.T) {
	path := writeCorpus(t, "timestamp,title\n2022-04-05,AAPL\nbad,AAPL\n")
	m, err := ticker.NewMatcher(ticker.Aliases([]string{"AAPL"}, nil))
	require.NoError(t, err)
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	s := NewStreamer(Options{Path: path, Start: date(2022, 1, 1), End: date(2022, 12, 31), WindowSize: 10}, m, nil, metrics)
	_, _, err = s.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CorpusRows.WithLabelValues(observability.RowKept)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CorpusRows.WithLabelValues(observability.RowBadTimestamp)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CorpusWindows))
}

func TestProduceWindows_WaitsForConsumer(t *testing.T) {
	r := csv.NewReader(strings.NewReader("a\nb\nc\nd\ne\n"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan window)
	consumed := make(chan struct{}, 1)
	go produceWindows(ctx, r, 2, out, consumed)

	first := <-out
	assert.Len(t, first.rows, 2)

	select {
	case <-out:
		t.Fatal("producer handed over a second window before the first was consumed")
	case <-time.After(50 * time.Millisecond):
	}

	consumed <- struct{}{}
	second := <-out
	assert.Equal(t, [][]string{{"c"}, {"d"}}, second.rows)

	consumed <- struct{}{}
	third := <-out
	assert.Equal(t, [][]string{{"e"}}, third.rows)

	_, open := <-out
	assert.False(t, open, "channel must close after the final window")
}
