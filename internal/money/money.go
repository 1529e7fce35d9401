// Package money holds minor-unit arithmetic shared by the cart, the splitter
// and the bill service. Amounts are int64 minor units; rational steps go
// through decimal so rounding is exact half-up.
package money

import "github.com/shopspring/decimal"

// DefaultUnit is the number of minor units in one whole currency unit.
const DefaultUnit int64 = 100

// RoundRatio returns round(num / den) half away from zero. den must not be 0.
func RoundRatio(num, den int64) int64 {
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(0).IntPart()
}

// Percent returns round(total * pct / 100).
func Percent(total int64, pct int) int64 {
	return RoundRatio(total*int64(pct), 100)
}

// Share returns round(total * part / whole), or 0 when whole is 0.
func Share(total, part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(total).Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole)).Round(0).IntPart()
}

// Weighted returns round(total * weight) for a decimal weight such as 0.40.
func Weighted(total int64, weight decimal.Decimal) int64 {
	return decimal.NewFromInt(total).Mul(weight).Round(0).IntPart()
}

// InclusiveTax extracts the tax contained in a tax-inclusive amount.
func InclusiveTax(lineTotal int64, ratePercent int) int64 {
	if ratePercent <= 0 || lineTotal == 0 {
		return 0
	}
	return RoundRatio(lineTotal*int64(ratePercent), int64(100+ratePercent))
}

// RoundToUnit rounds amount to the nearest multiple of unit and returns the
// rounded value together with the signed adjustment applied.
func RoundToUnit(amount, unit int64) (rounded int64, adjustment int64) {
	if unit <= 1 {
		return amount, 0
	}
	rounded = RoundRatio(amount, unit) * unit
	return rounded, rounded - amount
}

// Line is the money-relevant shape of a cart line or bill item.
type Line struct {
	UnitPriceCents int64
	Qty            int
	DiscountCents  int64
	TaxRatePercent int
}

// Total is (unit price - per-unit discount) x qty.
func (l Line) Total() int64 {
	return (l.UnitPriceCents - l.DiscountCents) * int64(l.Qty)
}

func (l Line) Gross() int64 {
	return l.UnitPriceCents * int64(l.Qty)
}

func (l Line) Tax() int64 {
	return InclusiveTax(l.Total(), l.TaxRatePercent)
}

type Totals struct {
	GrossCents              int64 `json:"gross_cents"`
	SubtotalCents           int64 `json:"subtotal_cents"`
	DiscountCents           int64 `json:"discount_cents"`
	TaxCents                int64 `json:"tax_cents"`
	RoundingAdjustmentCents int64 `json:"rounding_adjustment_cents"`
	RoundedTotalCents       int64 `json:"rounded_total_cents"`
}

// Summarize computes bill totals. Tax is extracted and rounded per line, never
// re-rounded at bill level. SubtotalCents is gross net of that tax so that
// RoundedTotal = Subtotal - Discount + Tax + RoundingAdjustment holds exactly.
func Summarize(lines []Line, globalDiscount int64, unit int64) Totals {
	var t Totals
	for _, line := range lines {
		t.GrossCents += line.Gross()
		t.DiscountCents += line.DiscountCents * int64(line.Qty)
		t.TaxCents += line.Tax()
	}
	t.DiscountCents += globalDiscount
	t.SubtotalCents = t.GrossCents - t.TaxCents
	net := t.GrossCents - t.DiscountCents
	if net < 0 {
		net = 0
	}
	t.RoundedTotalCents, t.RoundingAdjustmentCents = RoundToUnit(net, unit)
	return t
}
