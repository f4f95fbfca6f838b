package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
	"wsb-sentiment-lab/internal/storage"
	"wsb-sentiment-lab/internal/storage/memory"
)

func day(d int) time.Time {
	return time.Date(2022, 4, d, 0, 0, 0, 0, time.UTC)
}

func testTable() *evaluation.Table {
	up, down, flat := domain.DirectionUp, domain.DirectionDown, domain.DirectionNeutral
	return &evaluation.Table{
		Models: []string{"distilbert", "lr"},
		Rows: []*evaluation.Row{
			{
				Date: day(4), NextTradingDate: day(5), Ticker: "TSLA",
				CloseT: 1145.45, CloseT1: 1091.26, Realized: down, PostCount: 3,
				Cells: map[string]evaluation.Cell{
					"distilbert": {Predicted: down, Correct: true, MeanScore: 0.9},
					"lr":         {Predicted: up, Correct: false, MeanScore: 0.6666666666666666},
				},
			},
			{
				Date: day(5), NextTradingDate: day(6), Ticker: "GME",
				CloseT: 166.9, CloseT1: 166.9, Realized: flat, PostCount: 1,
				Cells: map[string]evaluation.Cell{
					"distilbert": {Predicted: flat, Correct: true, MeanScore: 0.5},
				},
			},
		},
	}
}

const wantCSV = "date,next_trading_day,ticker,close_t,close_t1,real_dir,n_posts," +
	"distilbert_pred_dir,distilbert_correct,distilbert_mean_score,lr_pred_dir,lr_correct,lr_mean_score\n" +
	"2022-04-04,2022-04-05,TSLA,1145.45,1091.26,-1,3,-1,1,0.9,1,0,0.6666666666666666\n" +
	"2022-04-05,2022-04-06,GME,166.9,166.9,0,1,0,1,0.5,,,\n"

func TestRenderCSV(t *testing.T) {
	assert.Equal(t, wantCSV, RenderCSV(testTable()))
}

func TestRenderCSV_Deterministic(t *testing.T) {
	assert.Equal(t, RenderCSV(testTable()), RenderCSV(testTable()))
}

func TestParseCSV_ReadsRenderedTable(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("\ufeff" + wantCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"distilbert", "lr"}, table.Models)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, RenderCSV(testTable()), RenderCSV(table))

	_, ok := table.Rows[1].Cell("lr")
	assert.False(t, ok)
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("date,ticker\n2022-04-04,TSLA\n"))
	assert.ErrorIs(t, err, ErrMalformedTable)
}

func TestParseCSV_BadValue(t *testing.T) {
	in := "date,next_trading_day,ticker,close_t,close_t1,real_dir,n_posts\n" +
		"2022-04-04,2022-04-05,TSLA,abc,1,1,1\n"
	_, err := ParseCSV(strings.NewReader(in))
	assert.ErrorIs(t, err, ErrMalformedTable)
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(evaluation.Summary{
		RowsEvaluated: 2,
		PostsAnalyzed: 4,
		Models: []evaluation.ModelSummary{
			{Model: "distilbert", Rows: 2, Accuracy: 1, SecPerText: 0.0123456},
		},
	})

	assert.Contains(t, out, "Rows evaluated: 2")
	assert.Contains(t, out, "distilbert directional accuracy: 1.0000 (2 rows)")
	assert.Contains(t, out, "distilbert sec_per_text = 0.012346")
}

func TestBuildDashboard(t *testing.T) {
	d := BuildDashboard(testTable(), []domain.ModelLatency{{Model: "distilbert", SecPerText: 0.0125}})

	assert.Equal(t, Window{Start: "2022-04-04", End: "2022-04-05"}, d.Window)
	assert.Equal(t, []string{"TSLA", "GME"}, d.Tickers)
	assert.Equal(t, 4, d.PostsAnalyzed)
	assert.Equal(t, 2, d.DaysEvaluated)

	require.Len(t, d.ModelComparison, 2)
	bert := d.ModelComparison[0]
	assert.Equal(t, "distilbert", bert.Model)
	assert.Equal(t, 1.0, bert.DirectionalAccuracy)
	assert.Equal(t, 2, bert.EvaluatedDays)
	assert.Equal(t, 0.7, bert.AvgConfidence)
	assert.Equal(t, 12.5, bert.AvgLatencyMs)

	lr := d.ModelComparison[1]
	assert.Equal(t, 0.0, lr.DirectionalAccuracy)
	assert.Equal(t, 0.666667, lr.AvgConfidence)
	assert.Equal(t, 0.0, lr.AvgLatencyMs)

	assert.Equal(t, Distribution{Neu: 1, Neg: 3}, d.SentimentDistribution["distilbert"])
	assert.Equal(t, Distribution{Pos: 3}, d.SentimentDistribution["lr"])
}

func TestBuildDashboard_Empty(t *testing.T) {
	d := BuildDashboard(&evaluation.Table{Models: []string{"lr"}}, nil)

	assert.Equal(t, Window{}, d.Window)
	assert.Empty(t, d.Tickers)
	assert.NotNil(t, d.Tickers)
	require.Len(t, d.ModelComparison, 1)
	assert.Equal(t, 0, d.ModelComparison[0].EvaluatedDays)
}

func TestQueryRows(t *testing.T) {
	rows, err := QueryRows(testTable(), RowFilter{Model: "distilbert"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, RowView{Date: "2022-04-04", Ticker: "TSLA", Pred: "DOWN", Real: "DOWN", Correct: true, Conf: 0.9}, rows[0])
	assert.Equal(t, "NEUTRAL", rows[1].Pred)

	rows, err = QueryRows(testTable(), RowFilter{Model: "distilbert", Ticker: "gme"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GME", rows[0].Ticker)

	rows, err = QueryRows(testTable(), RowFilter{Model: "distilbert", Start: "2022-04-05", End: "2022-04-30"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Window needs both ends
	rows, err = QueryRows(testTable(), RowFilter{Model: "distilbert", Start: "2022-04-05"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Rows without a verdict for the model are skipped
	rows, err = QueryRows(testTable(), RowFilter{Model: "lr"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestQueryRows_UnknownModel(t *testing.T) {
	_, err := QueryRows(testTable(), RowFilter{Model: "svm"})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func seedStores(t *testing.T) (*memory.RunStore, *memory.EvaluationStore) {
	t.Helper()
	ctx := context.Background()

	runs := memory.NewRunStore()
	evals := memory.NewEvaluationStore()

	run := &domain.Run{
		RunID:       "run-1",
		StartDate:   day(1),
		EndDate:     day(30),
		Tickers:     []string{"TSLA", "GME"},
		Models:      []string{"distilbert", "lr"},
		Outcome:     domain.OutcomeCompleted,
		RowsKept:    4,
		RowsAligned: 2,
		Latency:     []domain.ModelLatency{{Model: "distilbert", TextCount: 4, SecPerText: 0.01}},
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, runs.Insert(ctx, run))

	var records []*domain.EvaluationRecord
	for _, r := range testTable().Rows {
		for model, c := range r.Cells {
			records = append(records, &domain.EvaluationRecord{
				RowID: model + "|" + r.Ticker,
				RunID: "run-1",
				Model: model,
				EvaluationRow: domain.EvaluationRow{
					DailySignal: domain.DailySignal{
						Date: r.Date, Ticker: r.Ticker, PostCount: r.PostCount,
						Signal: c.Predicted, MeanScore: c.MeanScore,
					},
					NextTradingDate:   r.NextTradingDate,
					CloseT:            r.CloseT,
					CloseT1:           r.CloseT1,
					RealizedDirection: r.Realized,
					Correct:           c.Correct,
				},
			})
		}
	}
	require.NoError(t, evals.InsertBulk(ctx, records))

	return runs, evals
}

func TestGenerator_Generate(t *testing.T) {
	runs, evals := seedStores(t)
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	gen := NewGenerator(runs, evals).WithClock(func() time.Time { return fixed })
	report, err := gen.Generate(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, 2, report.Summary.RowsEvaluated)
	m, ok := report.Summary.Model("distilbert")
	require.True(t, ok)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 0.01, m.SecPerText)

	table, err := gen.Table(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, wantCSV, RenderCSV(table))

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Sentiment Backtest Report")
	assert.Contains(t, md, "Generated: 2026-02-03T04:05:06Z")
	assert.Contains(t, md, "| Window | 2022-04-01 .. 2022-04-30 |")
	assert.Contains(t, md, "| distilbert | 2 | 1.0000 | 0.7000 | 4 | 0.010000 |")
	assert.Contains(t, md, "| lr | 3 | 0 | 0 |")
}

func TestGenerator_NotFound(t *testing.T) {
	gen := NewGenerator(memory.NewRunStore(), memory.NewEvaluationStore())

	_, err := gen.Generate(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = gen.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerator_Latest(t *testing.T) {
	runs, evals := seedStores(t)

	id, err := NewGenerator(runs, evals).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)
}
