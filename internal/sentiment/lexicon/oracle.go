// Package lexicon is an offline, deterministic sentiment oracle built on
// financial word lists. It stands in for the prediction service in dry runs.
package lexicon

import (
	"context"
	"strings"
	"unicode"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/sentiment"
)

// Oracle labels texts by counting positive and negative words.
// The model identifier is ignored.
type Oracle struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

var _ sentiment.Oracle = (*Oracle)(nil)

// New creates an Oracle with the built-in word lists.
func New() *Oracle {
	return &Oracle{
		positive: toSet(positiveWords),
		negative: toSet(negativeWords),
	}
}

// Predict labels each text. Score is 0.5 for texts without sentiment words
// and grows toward 1 as one side dominates.
func (o *Oracle) Predict(ctx context.Context, _ string, texts []string) ([]sentiment.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]sentiment.Prediction, len(texts))
	for i, t := range texts {
		out[i] = o.classify(t)
	}
	return out, nil
}

func (o *Oracle) classify(text string) sentiment.Prediction {
	var pos, neg int
	for _, w := range tokenize(text) {
		if _, ok := o.positive[w]; ok {
			pos++
		}
		if _, ok := o.negative[w]; ok {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return sentiment.Prediction{Label: domain.LabelNeutral, Score: 0.5}
	}

	diff := pos - neg
	if diff < 0 {
		diff = -diff
	}
	score := 0.5 + 0.5*float64(diff)/float64(total)

	switch {
	case pos > neg:
		return sentiment.Prediction{Label: domain.LabelPositive, Score: score}
	case neg > pos:
		return sentiment.Prediction{Label: domain.LabelNegative, Score: score}
	default:
		return sentiment.Prediction{Label: domain.LabelNeutral, Score: score}
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Loughran-McDonald style lists plus common forum slang.
var positiveWords = []string{
	"achieve", "beat", "benefit", "better", "bull", "bullish", "buy", "calls",
	"excellent", "gain", "gains", "good", "great", "growth", "improve", "improved",
	"moon", "mooning", "outperform", "positive", "profit", "profitable", "rally",
	"record", "rip", "rips", "rocket", "robust", "soar", "solid", "squeeze",
	"strong", "success", "tendies", "up", "upbeat", "win", "winning",
}

var negativeWords = []string{
	"bag", "bagholder", "bagholding", "bear", "bearish", "crash", "crashing",
	"decline", "down", "downturn", "drop", "dump", "fail", "failure", "fear",
	"loss", "losses", "miss", "negative", "poor", "puts", "recession", "red",
	"risk", "sell", "short", "slowdown", "tank", "tanking", "weak", "worse", "worst",
}
