package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/quota-monitor/pkg/parser"
)

func TestCostSonnet(t *testing.T) {
	tbl := New(nil)

	// 1M input + 500K output + 200K cache write + 1M cache read:
	// 3.00 + 7.50 + 0.75 + 0.30 = 11.55
	u := parser.Usage{
		InputTokens:         1_000_000,
		OutputTokens:        500_000,
		CacheCreationTokens: 200_000,
		CacheReadTokens:     1_000_000,
	}

	cost, err := tbl.Cost("claude-sonnet-4-5", u)
	require.NoError(t, err)
	assert.InDelta(t, 11.55, cost, 1e-9)
}

func TestCostOpusDatedVariant(t *testing.T) {
	tbl := New(nil)

	u := parser.Usage{InputTokens: 100_000, OutputTokens: 120_000}

	// 1.50 + 9.00 = 10.50; dated suffix must still resolve to opus.
	cost, err := tbl.Cost("claude-opus-4-1-20250805", u)
	require.NoError(t, err)
	assert.InDelta(t, 10.50, cost, 1e-9)
}

func TestCostHaikuSmallVolume(t *testing.T) {
	tbl := New(nil)

	// 300 input + 600 output: 0.0003 + 0.003 = 0.0033
	u := parser.Usage{InputTokens: 300, OutputTokens: 600}

	cost, err := tbl.Cost("claude-haiku-4-5-20251001", u)
	require.NoError(t, err)
	assert.InDelta(t, 0.0033, cost, 1e-9)
}

func TestCostUnknownModel(t *testing.T) {
	tbl := New(nil)

	cost, err := tbl.Cost("gpt-oss-120b", parser.Usage{InputTokens: 1000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel), "error should wrap ErrUnknownModel")
	assert.Zero(t, cost)
}

func TestCostZeroUsage(t *testing.T) {
	tbl := New(nil)

	cost, err := tbl.Cost("claude-sonnet-4-5", parser.Usage{})
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestRatesExactOverride(t *testing.T) {
	tbl := New(map[string]Rates{
		"sonnet":            {Input: 3.0, Output: 15.0, CacheWrite: 3.75, CacheRead: 0.30},
		"claude-sonnet-4-5": {Input: 1.0, Output: 2.0},
	})

	// The exact entry wins over the family fallback.
	r, err := tbl.Rates("claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Input)
	assert.Equal(t, 2.0, r.Output)

	// Other sonnet variants still hit the family entry.
	r, err = tbl.Rates("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, 3.0, r.Input)
}

func TestRatesCaseInsensitive(t *testing.T) {
	tbl := New(nil)

	r, err := tbl.Rates("Claude-Opus-4-6")
	require.NoError(t, err)
	assert.Equal(t, 15.0, r.Input)
}

func TestDefaultRatesComplete(t *testing.T) {
	rates := DefaultRates()

	for _, family := range []string{"opus", "sonnet", "haiku"} {
		r, ok := rates[family]
		require.True(t, ok, "missing family %q", family)
		assert.Positive(t, r.Input, "%s input rate", family)
		assert.Positive(t, r.Output, "%s output rate", family)
		assert.Positive(t, r.CacheWrite, "%s cache write rate", family)
		assert.Positive(t, r.CacheRead, "%s cache read rate", family)
		assert.Greater(t, r.Output, r.Input, "%s output should cost more than input", family)
	}
}
