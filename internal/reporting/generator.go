package reporting

import (
	"context"
	"fmt"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
	"wsb-sentiment-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	runStore        storage.RunStore
	evaluationStore storage.EvaluationStore
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.RunStore, evalStore storage.EvaluationStore) *Generator {
	return &Generator{
		runStore:        runStore,
		evaluationStore: evalStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Table loads the result table of a run.
// Returns storage.ErrNotFound if the run does not exist.
func (g *Generator) Table(ctx context.Context, runID string) (*evaluation.Table, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := g.evaluationStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load evaluation rows: %w", err)
	}
	return evaluation.TableFromRecords(run.Models, records), nil
}

// Generate produces the report of a stored run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	records, err := g.evaluationStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load evaluation rows: %w", err)
	}
	table := evaluation.TableFromRecords(run.Models, records)

	return &Report{
		GeneratedAt: g.now(),
		Run:         *run,
		Summary:     evaluation.Summarize(table, run.Latency),
		Dashboard:   BuildDashboard(table, run.Latency),
	}, nil
}

// Latest returns the ID of the most recent stored run.
// Returns storage.ErrNotFound if no run has been stored.
func (g *Generator) Latest(ctx context.Context) (string, error) {
	runs, err := g.runStore.List(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", storage.ErrNotFound
	}
	return runs[0].RunID, nil
}

// Runs lists stored runs, newest first.
func (g *Generator) Runs(ctx context.Context) ([]*domain.Run, error) {
	return g.runStore.List(ctx)
}
