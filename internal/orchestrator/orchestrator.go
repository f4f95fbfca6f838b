// Package orchestrator provides E2E pipeline orchestration.
// It coordinates: corpus → sentiment → signals → prices → evaluation → storage
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"wsb-sentiment-lab/internal/corpus"
	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
	"wsb-sentiment-lab/internal/idhash"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/market"
	"wsb-sentiment-lab/internal/observability"
	"wsb-sentiment-lab/internal/sentiment"
	"wsb-sentiment-lab/internal/signal"
	"wsb-sentiment-lab/internal/storage"
	"wsb-sentiment-lab/internal/verification"
)

var (
	// ErrNoRecords is reported when no corpus row survives filtering.
	ErrNoRecords = errors.New("no attributed records in window")

	// ErrNoAlignedRows is reported when no signal has both closes.
	ErrNoAlignedRows = errors.New("no signal aligned with market closes")

	// ErrDuplicateModel is returned when a model is configured twice.
	ErrDuplicateModel = errors.New("duplicate model")

	// ErrAllModelsFailed is returned when every configured model fails to score.
	ErrAllModelsFailed = errors.New("all models failed")
)

// Corpus produces the attributed records of a run.
type Corpus interface {
	Collect(ctx context.Context) ([]domain.AttributedRecord, corpus.Stats, error)
}

// Orchestrator coordinates the E2E pipeline execution.
// Flow: corpus → scoring per model → aggregation → alignment → evaluation → persistence
type Orchestrator struct {
	corpus      Corpus
	oracle      sentiment.Oracle
	feed        market.Feed
	runStore    storage.RunStore
	evalStore   storage.EvaluationStore
	logger      *logger.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	clock       func() time.Time
	models      []string
	tickers     []string
	batchSize   int
	minPosts    int
	priceBuffer time.Duration
	start, end  time.Time
	corpusName  string
	priceSource string
}

// Options for creating Orchestrator.
type Options struct {
	// Required inputs
	Corpus Corpus
	Oracle sentiment.Oracle
	Feed   market.Feed
	Models []string

	// Run window and universe; they also feed the run id
	Start, End  time.Time
	Tickers     []string
	CorpusName  string // corpus identity, usually its path
	PriceSource string

	// Tuning
	BatchSize   int
	MinPosts    int           // signals with fewer posts are dropped; <= 1 keeps all
	PriceBuffer time.Duration // extra days fetched after End

	// Optional stores; both must be set for results to be persisted
	RunStore        storage.RunStore
	EvaluationStore storage.EvaluationStore

	// Optional
	Logger  *logger.Logger
	Metrics *observability.Metrics
	Now     func() time.Time // run creation time
	Clock   func() time.Time // latency clock for scoring
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		corpus:      opts.Corpus,
		oracle:      opts.Oracle,
		feed:        opts.Feed,
		runStore:    opts.RunStore,
		evalStore:   opts.EvaluationStore,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
		clock:       opts.Clock,
		models:      append([]string(nil), opts.Models...),
		tickers:     append([]string(nil), opts.Tickers...),
		batchSize:   opts.BatchSize,
		minPosts:    opts.MinPosts,
		priceBuffer: opts.PriceBuffer,
		start:       domain.DateOf(opts.Start),
		end:         domain.DateOf(opts.End),
		corpusName:  opts.CorpusName,
		priceSource: opts.PriceSource,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID        string
	Outcome      string // one of domain.Outcome*
	Stream       corpus.Stats
	RecordsKept  int
	Signals      map[string]int // daily signals per model after the min-posts filter
	Latency      []domain.ModelLatency
	FailedModels map[string]error
	Alignment    map[string]market.AlignStats
	Result       *evaluation.Result // nil unless Outcome is completed
	Persisted    bool
	Verification *verification.Report // set when the run was already stored
}

// Run executes the full E2E pipeline.
// Phases:
//  1. Stream the corpus into attributed records
//  2. Score every record with each model
//  3. Aggregate daily signals
//  4. Fetch closes once for the whole window
//  5. Align signals with closes
//  6. Evaluate
//  7. Persist (when stores are configured)
//
// Empty outcomes are reported through RunResult.Outcome with a nil error.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if len(o.models) == 0 {
		return nil, errors.New("no models configured")
	}
	seen := make(map[string]struct{}, len(o.models))
	for _, m := range o.models {
		if _, ok := seen[m]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateModel, m)
		}
		seen[m] = struct{}{}
	}

	result := &RunResult{
		RunID:        idhash.ComputeRunID(o.corpusName, o.start, o.end, o.tickers, o.models, o.minPosts, o.priceSource),
		Signals:      make(map[string]int, len(o.models)),
		FailedModels: make(map[string]error),
		Alignment:    make(map[string]market.AlignStats),
	}
	op := o.logger.StartOperation(ctx, "orchestrator.run", "run_id", result.RunID)
	ctx = op.Context()

	res, err := o.run(ctx, result)
	if err != nil {
		op.EndWithError(err)
		o.metrics.RecordPipelineRun("failed")
		return nil, err
	}
	op.End("outcome", res.Outcome)
	o.metrics.RecordPipelineRun(res.Outcome)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, result *RunResult) (*RunResult, error) {
	// Phase 1: Corpus
	o.log(ctx, "Phase 1: Streaming corpus...")
	phaseStart := time.Now()
	records, stats, err := o.corpus.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (stream corpus) failed: %w", err)
	}
	o.metrics.RecordPhase("stream", time.Since(phaseStart))
	result.Stream = stats
	result.RecordsKept = len(records)
	o.log(ctx, "  Kept %d of %d rows", len(records), stats.RowsRead)

	if len(records) == 0 {
		o.logger.Warn(ctx, "no records in window", "error", ErrNoRecords)
		result.Outcome = domain.OutcomeNoRecords
		return result, nil
	}

	// Phase 2: Scoring
	o.log(ctx, "Phase 2: Scoring %d records with %d models...", len(records), len(o.models))
	phaseStart = time.Now()
	scored := o.score(ctx, records, result)
	if len(scored) == 0 {
		return nil, fmt.Errorf("phase 2 (score) failed: %w", o.allFailed(result))
	}
	o.metrics.RecordPhase("score", time.Since(phaseStart))
	o.log(ctx, "  Scored with %d models (%d failed)", len(scored), len(result.FailedModels))

	// Phase 3: Aggregation
	o.log(ctx, "Phase 3: Aggregating daily signals...")
	signals := make(map[string][]domain.DailySignal, len(scored))
	for _, s := range scored {
		signals[s.model] = signal.FilterMinPosts(signal.Aggregate(s.records), o.minPosts)
		result.Signals[s.model] = len(signals[s.model])
		o.log(ctx, "  %s: built %d daily signals", s.model, len(signals[s.model]))
	}

	// Phase 4: Prices
	o.log(ctx, "Phase 4: Fetching closes...")
	phaseStart = time.Now()
	cal, err := o.fetchCalendar(ctx, signalTickers(signals))
	if err != nil {
		return nil, fmt.Errorf("phase 4 (fetch prices) failed: %w", err)
	}
	o.metrics.RecordPhase("prices", time.Since(phaseStart))
	o.log(ctx, "  Loaded closes for %d tickers", len(cal.Tickers()))

	// Phase 5: Alignment
	o.log(ctx, "Phase 5: Aligning signals with closes...")
	runs := make([]evaluation.ModelRun, 0, len(scored))
	aligned := 0
	for _, s := range scored {
		rows, st := market.Align(cal, signals[s.model])
		result.Alignment[s.model] = st
		o.metrics.RecordAlignment(st.Aligned, st.NoClose, st.NoNextClose)
		aligned += st.Aligned
		runs = append(runs, evaluation.ModelRun{Model: s.model, Rows: rows, Latency: s.latency})
		o.log(ctx, "  %s: aligned %d, dropped %d (no close %d, no next close %d)",
			s.model, st.Aligned, st.Dropped(), st.NoClose, st.NoNextClose)
	}

	if aligned == 0 {
		o.logger.Warn(ctx, "no aligned rows", "error", ErrNoAlignedRows)
		result.Outcome = domain.OutcomeNoAlignedRows
		return result, nil
	}

	// Phase 6: Evaluation
	o.log(ctx, "Phase 6: Evaluating...")
	evalResult, err := evaluation.Evaluate(runs)
	if err != nil {
		return nil, fmt.Errorf("phase 6 (evaluate) failed: %w", err)
	}
	result.Result = evalResult
	result.Outcome = domain.OutcomeCompleted
	for _, m := range evalResult.Summary.Models {
		o.metrics.RecordAccuracy(m.Model, m.Accuracy)
		o.log(ctx, "  %s: accuracy %.4f over %d rows", m.Model, m.Accuracy, m.Rows)
	}

	// Phase 7: Persistence
	if o.runStore == nil || o.evalStore == nil {
		o.log(ctx, "Phase 7: Skipping persistence (no stores)")
		return result, nil
	}
	o.log(ctx, "Phase 7: Persisting run %s...", result.RunID)
	phaseStart = time.Now()
	persisted, err := o.persist(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("phase 7 (persist) failed: %w", err)
	}
	o.metrics.RecordPhase("persist", time.Since(phaseStart))
	result.Persisted = persisted

	o.log(ctx, "Pipeline completed: %d records, %d rows, %d models",
		result.RecordsKept, len(evalResult.Table.Rows), len(runs))
	return result, nil
}

type modelScores struct {
	model   string
	records []domain.ScoredRecord
	latency domain.ModelLatency
}

// score runs every model in configured order. A failing model is recorded
// and skipped.
func (o *Orchestrator) score(ctx context.Context, records []domain.AttributedRecord, result *RunResult) []modelScores {
	client := sentiment.NewClient(o.oracle, o.batchSize, o.logger).WithClock(o.clock)

	var out []modelScores
	for _, model := range o.models {
		scored, err := client.Score(ctx, model, records)
		if err != nil {
			result.FailedModels[model] = err
			o.logger.ErrorWithErr(ctx, "model failed", err, "model", model)
			continue
		}
		o.metrics.RecordSecondsPerText(model, scored.Latency.SecPerText)
		result.Latency = append(result.Latency, scored.Latency)
		out = append(out, modelScores{model: model, records: scored.Records, latency: scored.Latency})
	}
	return out
}

func (o *Orchestrator) allFailed(result *RunResult) error {
	errs := []error{ErrAllModelsFailed}
	for _, model := range o.models {
		if err, ok := result.FailedModels[model]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", model, err))
		}
	}
	return errors.Join(errs...)
}

// fetchCalendar loads closes for tickers once. A feed without data yields
// an empty calendar, so every signal drops during alignment.
func (o *Orchestrator) fetchCalendar(ctx context.Context, tickers []string) (*market.Calendar, error) {
	if len(tickers) == 0 {
		return market.NewCalendar(nil), nil
	}
	start, end := market.FetchRange(o.start, o.end, o.priceBuffer)
	points, err := o.feed.Closes(ctx, tickers, start, end)
	if err != nil {
		if errors.Is(err, market.ErrNoPriceData) {
			o.logger.Warn(ctx, "no closes returned", "tickers", tickers)
			return market.NewCalendar(nil), nil
		}
		return nil, err
	}
	return market.NewCalendar(points), nil
}

// persist stores the run and its evaluation records. A run already present
// is verified against the fresh result; one stored without rows gets them.
func (o *Orchestrator) persist(ctx context.Context, result *RunResult) (bool, error) {
	run := &domain.Run{
		RunID:       result.RunID,
		StartDate:   o.start,
		EndDate:     o.end,
		Tickers:     o.tickers,
		Models:      result.Result.Table.Models,
		Outcome:     result.Outcome,
		RowsKept:    result.RecordsKept,
		RowsAligned: len(result.Result.Table.Rows),
		Latency:     result.Latency,
		CreatedAt:   o.now().UTC(),
	}
	records := Records(result.RunID, result.Result.Table)

	err := o.write(ctx, run, records)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return o.reconcile(ctx, result, records)
	}
	if err != nil {
		return false, err
	}
	o.log(ctx, "  Stored %d evaluation records", len(records))
	return true, nil
}

// write stores run and records as one unit. Stores that cannot write both
// atomically get the run removed again when the records fail.
func (o *Orchestrator) write(ctx context.Context, run *domain.Run, records []*domain.EvaluationRecord) error {
	if w, ok := o.runStore.(storage.ResultWriter); ok {
		start := time.Now()
		err := w.Persist(ctx, run, records)
		o.metrics.RecordDBQuery("runs", "persist", time.Since(start), ignoreDuplicate(err))
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("persist run with %d evaluation records: %w", len(records), err)
		}
		return err
	}

	start := time.Now()
	err := o.runStore.Insert(ctx, run)
	o.metrics.RecordDBQuery("runs", "insert", time.Since(start), ignoreDuplicate(err))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("insert run: %w", err)
	}

	if err := o.insertRecords(ctx, records); err != nil {
		if delErr := o.runStore.Delete(ctx, run.RunID); delErr != nil {
			return errors.Join(err, fmt.Errorf("remove run %s: %w", run.RunID, delErr))
		}
		return err
	}
	return nil
}

func (o *Orchestrator) insertRecords(ctx context.Context, records []*domain.EvaluationRecord) error {
	start := time.Now()
	err := o.evalStore.InsertBulk(ctx, records)
	o.metrics.RecordDBQuery("evaluation_rows", "insert_bulk", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert %d evaluation records: %w", len(records), err)
	}
	return nil
}

// reconcile handles a run id that is already stored.
func (o *Orchestrator) reconcile(ctx context.Context, result *RunResult, records []*domain.EvaluationRecord) (bool, error) {
	stored, err := o.evalStore.GetByRunID(ctx, result.RunID)
	if err != nil {
		return false, fmt.Errorf("load stored rows: %w", err)
	}
	if len(stored) == 0 && len(records) > 0 {
		o.log(ctx, "  Run %s stored without rows, writing %d evaluation records", result.RunID, len(records))
		if err := o.insertRecords(ctx, records); err != nil {
			return false, err
		}
		return true, nil
	}

	o.log(ctx, "  Run %s already persisted, verifying stored rows", result.RunID)
	report, err := o.verify(ctx, result, stored)
	if err != nil {
		return false, fmt.Errorf("verify stored run: %w", err)
	}
	result.Verification = report
	if !report.Match() {
		o.logger.Warn(ctx, "stored run diverges from replay", "run_id", result.RunID, "report", report.String())
	}
	o.log(ctx, "  Verification: %s", report)
	return false, nil
}

// verify compares the stored rows of the run with the fresh result.
func (o *Orchestrator) verify(ctx context.Context, result *RunResult, records []*domain.EvaluationRecord) (*verification.Report, error) {
	stored, err := o.runStore.GetByID(ctx, result.RunID)
	if err != nil {
		return nil, err
	}
	table := evaluation.TableFromRecords(stored.Models, records)
	return verification.CompareTables(table, result.Result.Table), nil
}

// Records flattens a result table into one record per (model, row).
func Records(runID string, table *evaluation.Table) []*domain.EvaluationRecord {
	var out []*domain.EvaluationRecord
	for _, row := range table.Rows {
		for _, model := range table.Models {
			cell, ok := row.Cell(model)
			if !ok {
				continue
			}
			out = append(out, &domain.EvaluationRecord{
				RowID: idhash.ComputeRowID(runID, model, row.Date, row.Ticker),
				RunID: runID,
				Model: model,
				EvaluationRow: domain.EvaluationRow{
					DailySignal: domain.DailySignal{
						Date:      row.Date,
						Ticker:    row.Ticker,
						PostCount: row.PostCount,
						Signal:    cell.Predicted,
						MeanScore: cell.MeanScore,
					},
					NextTradingDate:   row.NextTradingDate,
					CloseT:            row.CloseT,
					CloseT1:           row.CloseT1,
					RealizedDirection: row.Realized,
					Correct:           cell.Correct,
				},
			})
		}
	}
	return out
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

// signalTickers returns the sorted tickers that have at least one signal.
func signalTickers(signals map[string][]domain.DailySignal) []string {
	set := make(map[string]struct{})
	for _, sigs := range signals {
		for _, s := range sigs {
			set[s.Ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) log(ctx context.Context, format string, args ...any) {
	o.logger.Info(ctx, fmt.Sprintf(format, args...), "component", "orchestrator")
}
