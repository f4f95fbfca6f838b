// Package ticker attributes texts to tracked equity symbols by alias matching.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"wsb-sentiment-lab/internal/domain"
)

// ErrEmptyUniverse is returned when no tickers are given.
var ErrEmptyUniverse = errors.New("ticker universe is empty")

type pattern struct {
	ticker string
	re     *regexp.Regexp
}

// Matcher finds which tracked tickers a text mentions.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	patterns []pattern
}

// NewMatcher compiles one case-insensitive alternation per ticker, bounded
// so an alias never matches inside a longer word. Match results follow the order of aliases.
func NewMatcher(aliases []domain.TickerAlias) (*Matcher, error) {
	if len(aliases) == 0 {
		return nil, ErrEmptyUniverse
	}

	m := &Matcher{patterns: make([]pattern, 0, len(aliases))}
	seen := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		if a.Ticker == "" {
			return nil, errors.New("ticker symbol cannot be empty")
		}
		if _, ok := seen[a.Ticker]; ok {
			return nil, fmt.Errorf("duplicate ticker %q", a.Ticker)
		}
		seen[a.Ticker] = struct{}{}

		re, err := compileAliases(a.Aliases)
		if err != nil {
			return nil, fmt.Errorf("compile aliases for %s: %w", a.Ticker, err)
		}
		m.patterns = append(m.patterns, pattern{ticker: a.Ticker, re: re})
	}
	return m, nil
}

func compileAliases(aliases []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			quoted = append(quoted, regexp.QuoteMeta(a))
		}
	}
	if len(quoted) == 0 {
		return nil, errors.New("no aliases")
	}
	return regexp.Compile(`(?i)(?:^|` + nonWord + `)(?:` + strings.Join(quoted, "|") + `)(?:` + nonWord + `|$)`)
}

// nonWord is any rune that cannot be part of a word. Unlike \b in RE2 it
// treats non-ASCII letters and digits as word runes, so "Teslaé" is one word.
const nonWord = `[^\p{L}\p{N}\p{M}_]`

// Tickers returns the tracked symbols in universe order.
func (m *Matcher) Tickers() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.ticker
	}
	return out
}

// Match returns every tracked ticker mentioned in text, in universe order.
func (m *Matcher) Match(text string) []string {
	if text == "" {
		return nil
	}
	var found []string
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			found = append(found, p.ticker)
		}
	}
	return found
}

// Attribute returns the ticker when text mentions exactly one tracked
// ticker, along with the number of distinct tickers mentioned. ticker is
// empty unless hits is 1.
func (m *Matcher) Attribute(text string) (ticker string, hits int) {
	found := m.Match(text)
	if len(found) != 1 {
		return "", len(found)
	}
	return found[0], 1
}
