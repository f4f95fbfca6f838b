package lexicon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsb-sentiment-lab/internal/domain"
)

func TestPredict(t *testing.T) {
	o := New()

	preds, err := o.Predict(context.Background(), "any", []string{
		"TSLA to the moon, buying calls",
		"GME puts, this will crash",
		"AAPL event tomorrow",
		"strong but risky: good gains, weak guidance",
		" ",
	})
	require.NoError(t, err)
	require.Len(t, preds, 5)

	assert.Equal(t, domain.LabelPositive, preds[0].Label)
	assert.Equal(t, 1.0, preds[0].Score)
	assert.Equal(t, domain.LabelNegative, preds[1].Label)
	assert.Equal(t, domain.LabelNeutral, preds[2].Label)
	assert.Equal(t, 0.5, preds[2].Score)
	assert.Equal(t, domain.LabelPositive, preds[3].Label) // strong, good, gains vs weak
	assert.InDelta(t, 0.75, preds[3].Score, 1e-9)
	assert.Equal(t, domain.LabelNeutral, preds[4].Label)
}

func TestPredict_Deterministic(t *testing.T) {
	o := New()
	texts := []string{"moon", "tank", "meh"}

	a, err := o.Predict(context.Background(), "m", texts)
	require.NoError(t, err)
	b, err := o.Predict(context.Background(), "m", texts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredict_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Predict(ctx, "m", []string{"moon"})
	assert.ErrorIs(t, err, context.Canceled)
}
