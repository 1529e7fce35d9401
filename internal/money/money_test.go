package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundRatioHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(3), RoundRatio(5, 2))
	assert.Equal(t, int64(3333), RoundRatio(10000, 3))
	assert.Equal(t, int64(-3), RoundRatio(-5, 2))
}

func TestInclusiveTax(t *testing.T) {
	// 118.00 with 18% included holds 18.00 of tax.
	assert.Equal(t, int64(1800), InclusiveTax(11800, 18))
	assert.Equal(t, int64(153), InclusiveTax(1000, 18))
	assert.Equal(t, int64(0), InclusiveTax(1000, 0))
}

func TestRoundToUnit(t *testing.T) {
	rounded, adj := RoundToUnit(10049, 100)
	assert.Equal(t, int64(10000), rounded)
	assert.Equal(t, int64(-49), adj)

	rounded, adj = RoundToUnit(10050, 100)
	assert.Equal(t, int64(10100), rounded)
	assert.Equal(t, int64(50), adj)

	rounded, adj = RoundToUnit(777, 1)
	assert.Equal(t, int64(777), rounded)
	assert.Zero(t, adj)
}

func TestWeightedAndShare(t *testing.T) {
	assert.Equal(t, int64(4000), Weighted(10000, decimal.RequireFromString("0.40")))
	assert.Equal(t, int64(3333), Share(10000, 1, 3))
	assert.Zero(t, Share(10000, 1, 0))
	assert.Equal(t, int64(2500), Percent(10000, 25))
}

func TestSummarizeKeepsBillIdentity(t *testing.T) {
	lines := []Line{
		{UnitPriceCents: 59900, Qty: 1, TaxRatePercent: 18},
		{UnitPriceCents: 24950, Qty: 2, DiscountCents: 1000, TaxRatePercent: 18},
		{UnitPriceCents: 1333, Qty: 3, TaxRatePercent: 5},
	}
	totals := Summarize(lines, 500, DefaultUnit)

	assert.Equal(t, int64(59900+49900+3999), totals.GrossCents)
	assert.Equal(t, int64(2000+500), totals.DiscountCents)
	assert.Equal(t, totals.RoundedTotalCents,
		totals.SubtotalCents-totals.DiscountCents+totals.TaxCents+totals.RoundingAdjustmentCents)
	assert.Zero(t, totals.RoundedTotalCents%DefaultUnit)
}

func TestSummarizeTaxIsPerLine(t *testing.T) {
	lines := []Line{
		{UnitPriceCents: 1000, Qty: 1, TaxRatePercent: 18},
		{UnitPriceCents: 1000, Qty: 1, TaxRatePercent: 18},
	}
	totals := Summarize(lines, 0, 1)
	// Each line rounds 152.54 to 153 independently; a single bill-level
	// extraction would give 305.
	assert.Equal(t, int64(306), totals.TaxCents)
}
