// Package pricing converts token usage into USD cost using per-model
// rate tables. Rates are expressed in dollars per million tokens, with
// separate rates for input, output, cache-write, and cache-read tokens.
//
// Cost calculation refuses to guess: a model with no configured rate
// yields ErrUnknownModel rather than a silent zero, so aggregate cost
// never underreports without leaving a trace.
package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xmhha/quota-monitor/pkg/parser"
)

// Rates holds per-token-type prices in USD per million tokens.
type Rates struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// Cost computes the USD cost of the given usage at these rates.
func (r Rates) Cost(u parser.Usage) float64 {
	const mtok = 1_000_000.0
	return float64(u.InputTokens)*r.Input/mtok +
		float64(u.OutputTokens)*r.Output/mtok +
		float64(u.CacheCreationTokens)*r.CacheWrite/mtok +
		float64(u.CacheReadTokens)*r.CacheRead/mtok
}

// Table resolves model identifiers to rates and computes costs.
//
// Resolution first tries an exact match on the full model identifier,
// then falls back to family substring matching ("opus", "sonnet",
// "haiku") so that dated variants like claude-sonnet-4-5-20250929
// resolve without per-release table updates.
type Table interface {
	// Rates returns the rates for the given model identifier.
	//
	// Returns ErrUnknownModel if the model matches no table entry.
	Rates(model string) (Rates, error)

	// Cost computes the USD cost of one usage record for the model.
	//
	// Returns ErrUnknownModel if the model matches no table entry;
	// callers must surface the error, never treat it as zero cost.
	Cost(model string, u parser.Usage) (float64, error)
}

// table implements Table.
type table struct {
	exact    map[string]Rates
	families []familyRate
}

type familyRate struct {
	substr string
	rates  Rates
}

// DefaultRates returns the built-in rate table, keyed by model family.
// Values are USD per million tokens.
func DefaultRates() map[string]Rates {
	return map[string]Rates{
		"opus":   {Input: 15.0, Output: 75.0, CacheWrite: 18.75, CacheRead: 1.50},
		"sonnet": {Input: 3.0, Output: 15.0, CacheWrite: 3.75, CacheRead: 0.30},
		"haiku":  {Input: 1.0, Output: 5.0, CacheWrite: 1.25, CacheRead: 0.10},
	}
}

// New creates a Table from the given rate map. Keys that look like
// family names (no dashes or digits) become substring matchers; all
// keys also match exactly.
//
// Passing nil uses DefaultRates().
func New(rates map[string]Rates) Table {
	if rates == nil {
		rates = DefaultRates()
	}

	t := &table{exact: make(map[string]Rates, len(rates))}

	for model, r := range rates {
		t.exact[normalize(model)] = r
		if isFamilyKey(model) {
			t.families = append(t.families, familyRate{substr: normalize(model), rates: r})
		}
	}

	// Longest family substrings match first so a specific key like
	// "sonnet-legacy" cannot be shadowed by "sonnet".
	sort.Slice(t.families, func(i, j int) bool {
		return len(t.families[i].substr) > len(t.families[j].substr)
	})

	return t
}

// Rates implements Table.Rates.
func (t *table) Rates(model string) (Rates, error) {
	norm := normalize(model)

	if r, ok := t.exact[norm]; ok {
		return r, nil
	}

	for _, f := range t.families {
		if strings.Contains(norm, f.substr) {
			return f.rates, nil
		}
	}

	return Rates{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// Cost implements Table.Cost.
func (t *table) Cost(model string, u parser.Usage) (float64, error) {
	r, err := t.Rates(model)
	if err != nil {
		return 0, err
	}
	return r.Cost(u), nil
}

func normalize(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

// isFamilyKey reports whether a rate key names a model family rather
// than one exact model identifier.
func isFamilyKey(key string) bool {
	return !strings.ContainsAny(key, "-0123456789")
}
