package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsb-sentiment-lab/internal/corpus"
	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/market"
	"wsb-sentiment-lab/internal/reporting"
	"wsb-sentiment-lab/internal/sentiment"
	"wsb-sentiment-lab/internal/storage/memory"
	"wsb-sentiment-lab/internal/ticker"
)

const baseCorpus = `timestamp,title,body
2022-04-04T10:00,TSLA to the moon,
2022-04-04T11:00,TSLA rocket,lets go
2022-04-04T12:00,TSLA earnings,next week
2022-04-04T13:00,TSLA and NVDA are great,
`

// keywordOracle labels texts by keyword; models listed in fail always error.
type keywordOracle struct {
	fail  map[string]bool
	calls int
}

func (o *keywordOracle) Predict(_ context.Context, model string, texts []string) ([]sentiment.Prediction, error) {
	o.calls++
	if o.fail[model] {
		return nil, errors.New("model unavailable")
	}
	out := make([]sentiment.Prediction, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "moon"), strings.Contains(t, "rocket"):
			out[i] = sentiment.Prediction{Label: "positive", Score: 0.9}
		case strings.Contains(t, "crash"):
			out[i] = sentiment.Prediction{Label: "negative", Score: 0.8}
		default:
			out[i] = sentiment.Prediction{Label: "neutral", Score: 0.6}
		}
	}
	return out, nil
}

type fakeFeed struct {
	points     []domain.PricePoint
	err        error
	calls      int
	tickers    []string
	start, end time.Time
}

func (f *fakeFeed) Closes(_ context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error) {
	f.calls++
	f.tickers = tickers
	f.start, f.end = start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tslaCloses() []domain.PricePoint {
	return []domain.PricePoint{
		{Ticker: "TSLA", Date: day(2022, 4, 4), Close: 100},
		{Ticker: "TSLA", Date: day(2022, 4, 5), Close: 105},
	}
}

type fixture struct {
	oracle    *keywordOracle
	feed      *fakeFeed
	runStore  *memory.RunStore
	evalStore *memory.EvaluationStore
	opts      Options
}

func newFixture(t *testing.T, content string, models ...string) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsb.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tickers := []string{"TSLA", "AAPL", "MSFT", "NVDA", "AMD", "GME"}
	matcher, err := ticker.NewMatcher(ticker.Aliases(tickers, nil))
	require.NoError(t, err)

	start, end := day(2022, 4, 1), day(2022, 4, 30)
	streamer := corpus.NewStreamer(corpus.Options{
		Path:       path,
		Start:      start,
		End:        end,
		WindowSize: 2,
	}, matcher, nil, nil)

	f := &fixture{
		oracle:    &keywordOracle{fail: map[string]bool{}},
		feed:      &fakeFeed{points: tslaCloses()},
		runStore:  memory.NewRunStore(),
		evalStore: memory.NewEvaluationStore(),
	}
	if len(models) == 0 {
		models = []string{"distilbert"}
	}
	f.opts = Options{
		Corpus:          streamer,
		Oracle:          f.oracle,
		Feed:            f.feed,
		Models:          models,
		Start:           start,
		End:             end,
		Tickers:         tickers,
		CorpusName:      path,
		PriceSource:     "test",
		BatchSize:       2,
		PriceBuffer:     7 * 24 * time.Hour,
		RunStore:        f.runStore,
		EvaluationStore: f.evalStore,
		Now:             func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	return f
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus)

	res, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 4, res.Stream.RowsRead)
	assert.Equal(t, 1, res.Stream.Ambiguous)
	assert.Equal(t, 3, res.RecordsKept)
	assert.Empty(t, res.FailedModels)
	assert.True(t, res.Persisted)
	assert.Len(t, res.RunID, 64)

	// one fetch covering the window plus the buffer
	assert.Equal(t, 1, f.feed.calls)
	assert.Equal(t, []string{"TSLA"}, f.feed.tickers)
	assert.Equal(t, day(2022, 4, 1), f.feed.start)
	assert.Equal(t, day(2022, 5, 7), f.feed.end)

	require.NotNil(t, res.Result)
	rows := res.Result.Table.Rows
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, day(2022, 4, 4), row.Date)
	assert.Equal(t, day(2022, 4, 5), row.NextTradingDate)
	assert.Equal(t, "TSLA", row.Ticker)
	assert.Equal(t, 3, row.PostCount)
	assert.Equal(t, domain.DirectionUp, row.Realized)

	cell, ok := row.Cell("distilbert")
	require.True(t, ok)
	assert.Equal(t, domain.DirectionUp, cell.Predicted)
	assert.True(t, cell.Correct)
	assert.InDelta(t, 0.8, cell.MeanScore, 1e-9)

	summary, ok := res.Result.Summary.Model("distilbert")
	require.True(t, ok)
	assert.Equal(t, 1.0, summary.Accuracy)
	assert.Equal(t, 3, summary.TextCount)

	assert.Equal(t, market.AlignStats{Signals: 1, Aligned: 1}, res.Alignment["distilbert"])

	run, err := f.runStore.GetByID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, run.Outcome)
	assert.Equal(t, 3, run.RowsKept)
	assert.Equal(t, 1, run.RowsAligned)

	records, err := f.evalStore.GetByRunID(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "distilbert", records[0].Model)
	assert.True(t, records[0].Correct)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus, "distilbert", "finbert")

	first, err := New(f.opts).Run(ctx)
	require.NoError(t, err)
	second, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.True(t, first.Persisted)
	assert.False(t, second.Persisted, "second run finds the run already stored")
	assert.Nil(t, first.Verification)
	require.NotNil(t, second.Verification)
	assert.True(t, second.Verification.Match(), second.Verification.String())
	assert.Equal(t, reporting.RenderCSV(first.Result.Table), reporting.RenderCSV(second.Result.Table))

	// stored records rebuild the same table
	stored, err := reporting.NewGenerator(f.runStore, f.evalStore).Table(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, reporting.RenderCSV(first.Result.Table), reporting.RenderCSV(stored))

	runs, err := f.runStore.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_RerunDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus)

	_, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	// a revised close for the same configuration flips the realized direction
	f.feed.points = []domain.PricePoint{
		{Ticker: "TSLA", Date: day(2022, 4, 4), Close: 100},
		{Ticker: "TSLA", Date: day(2022, 4, 5), Close: 95},
	}
	res, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, res.Verification)
	assert.False(t, res.Verification.Match())
	assert.Equal(t, 1, res.Verification.DivergentRows)
}

// flakyEvaluationStore fails the first failures calls to InsertBulk.
type flakyEvaluationStore struct {
	*memory.EvaluationStore
	failures int
}

func (s *flakyEvaluationStore) InsertBulk(ctx context.Context, records []*domain.EvaluationRecord) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.EvaluationStore.InsertBulk(ctx, records)
}

func TestRun_FailedRowInsertLeavesNoRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus)
	evals := &flakyEvaluationStore{EvaluationStore: f.evalStore, failures: 1}
	f.opts.EvaluationStore = evals

	_, err := New(f.opts).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase 7")
	assert.Contains(t, err.Error(), "connection reset")

	runs, err := f.runStore.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs, "run must not outlive its failed rows")

	// the next run stores everything
	res, err := New(f.opts).Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Nil(t, res.Verification)

	records, err := f.evalStore.GetByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_RerunFillsRunStoredWithoutRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus)

	first, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	// same runs, empty evaluation rows
	f.evalStore = memory.NewEvaluationStore()
	f.opts.EvaluationStore = f.evalStore

	res, err := New(f.opts).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, res.RunID)
	assert.True(t, res.Persisted)
	assert.Nil(t, res.Verification)

	records, err := f.evalStore.GetByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// and a third run only verifies
	again, err := New(f.opts).Run(ctx)
	require.NoError(t, err)
	assert.False(t, again.Persisted)
	require.NotNil(t, again.Verification)
	assert.True(t, again.Verification.Match(), again.Verification.String())
}

func TestRun_NoRecords(t *testing.T) {
	f := newFixture(t, `timestamp,title,body
2022-04-04T13:00,TSLA and NVDA are great,
2022-03-01T10:00,TSLA before the window,
`)

	res, err := New(f.opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNoRecords, res.Outcome)
	assert.Nil(t, res.Result)
	assert.Equal(t, 0, f.oracle.calls)
	assert.Equal(t, 0, f.feed.calls)
	assert.False(t, res.Persisted)
}

func TestRun_NoAlignedRows(t *testing.T) {
	t.Run("missing next close", func(t *testing.T) {
		f := newFixture(t, baseCorpus)
		f.feed.points = tslaCloses()[:1]

		res, err := New(f.opts).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeNoAlignedRows, res.Outcome)
		assert.Equal(t, 1, res.Alignment["distilbert"].NoNextClose)
		assert.Nil(t, res.Result)
	})

	t.Run("feed without data", func(t *testing.T) {
		f := newFixture(t, baseCorpus)
		f.feed.err = market.ErrNoPriceData

		res, err := New(f.opts).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeNoAlignedRows, res.Outcome)
		assert.Equal(t, 1, res.Alignment["distilbert"].NoClose)
	})

	t.Run("min posts filter", func(t *testing.T) {
		f := newFixture(t, baseCorpus)
		f.opts.MinPosts = 4

		res, err := New(f.opts).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeNoAlignedRows, res.Outcome)
		assert.Equal(t, 0, res.Signals["distilbert"])
		assert.Equal(t, 0, f.feed.calls)
	})
}

func TestRun_FeedError(t *testing.T) {
	f := newFixture(t, baseCorpus)
	f.feed.err = errors.New("connection refused")

	_, err := New(f.opts).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase 4")
}

func TestRun_FailedModelIsSkipped(t *testing.T) {
	f := newFixture(t, baseCorpus, "distilbert", "broken")
	f.oracle.fail["broken"] = true

	res, err := New(f.opts).Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, res.FailedModels, "broken")
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"distilbert"}, res.Result.Table.Models)
	require.Len(t, res.Latency, 1)
	assert.Equal(t, "distilbert", res.Latency[0].Model)
}

func TestRun_DuplicateModelRejected(t *testing.T) {
	f := newFixture(t, baseCorpus, "m", "m")

	_, err := New(f.opts).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateModel)
	assert.Equal(t, 0, f.oracle.calls)

	runs, err := f.runStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_SignalsCountedPerModel(t *testing.T) {
	f := newFixture(t, baseCorpus, "distilbert", "finbert", "broken")
	f.oracle.fail["broken"] = true

	res, err := New(f.opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"distilbert": 1, "finbert": 1}, res.Signals)
}

func TestRun_AllModelsFailed(t *testing.T) {
	f := newFixture(t, baseCorpus, "a", "b")
	f.oracle.fail["a"] = true
	f.oracle.fail["b"] = true

	_, err := New(f.opts).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)

	var batchErr *sentiment.BatchError
	assert.ErrorAs(t, err, &batchErr)
}

func TestRun_WithoutStores(t *testing.T) {
	f := newFixture(t, baseCorpus)
	f.opts.RunStore = nil
	f.opts.EvaluationStore = nil

	res, err := New(f.opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.False(t, res.Persisted)
}

func TestRun_CorpusError(t *testing.T) {
	f := newFixture(t, baseCorpus)
	f.opts.Corpus = corpus.NewStreamer(corpus.Options{
		Path:       filepath.Join(t.TempDir(), "missing.csv"),
		WindowSize: 10,
	}, nil, nil, nil)

	_, err := New(f.opts).Run(context.Background())
	require.Error(t, err)

	var cfgErr *corpus.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRecords_OnePerModelCell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseCorpus, "distilbert", "finbert")

	res, err := New(f.opts).Run(ctx)
	require.NoError(t, err)

	records := Records(res.RunID, res.Result.Table)
	require.Len(t, records, 2)
	assert.Equal(t, "distilbert", records[0].Model)
	assert.Equal(t, "finbert", records[1].Model)
	assert.NotEqual(t, records[0].RowID, records[1].RowID)
	assert.Equal(t, 3, records[0].PostCount)
}
