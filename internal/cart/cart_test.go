package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

func haircut(staff string) Candidate {
	return Candidate{
		Kind:           domain.ItemKindService,
		RefID:          "svc-cut",
		Name:           "Haircut",
		UnitPriceCents: 50000,
		Qty:            1,
		TaxRatePercent: 18,
		StaffID:        staff,
	}
}

func shampoo() Candidate {
	return Candidate{
		Kind:           domain.ItemKindProduct,
		RefID:          "prd-shampoo",
		Name:           "Shampoo 250ml",
		UnitPriceCents: 32000,
		Qty:            1,
		TaxRatePercent: 18,
	}
}

func TestAddLineMergesProductsAndMatchingStaff(t *testing.T) {
	c := New(100)

	first, err := c.AddLine(shampoo())
	require.NoError(t, err)
	merged, err := c.AddLine(shampoo())
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, 2, merged.Qty)

	a, err := c.AddLine(haircut("stf-ana"))
	require.NoError(t, err)
	again, err := c.AddLine(haircut("stf-ana"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	other, err := c.AddLine(haircut("stf-ben"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)

	assert.Len(t, c.Lines(), 3)
}

func TestMultiStaffLinesNeverMerge(t *testing.T) {
	c := New(100)
	candidate := Candidate{
		Kind:           domain.ItemKindService,
		RefID:          "svc-balayage",
		UnitPriceCents: 300000,
		Qty:            1,
		MultiStaff:     true,
	}
	first, err := c.AddLine(candidate)
	require.NoError(t, err)
	second, err := c.AddLine(candidate)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Qty)
	assert.True(t, second.MultiStaff)
}

func TestBookedLinesAreNotMergedOrEdited(t *testing.T) {
	c := New(100)
	line, err := c.AddLine(shampoo())
	require.NoError(t, err)
	c.MarkBooked([]string{line.ID})

	fresh, err := c.AddLine(shampoo())
	require.NoError(t, err)
	assert.NotEqual(t, line.ID, fresh.ID)
	assert.False(t, fresh.Booked)

	err = c.SetQuantity(line.ID, 5)
	assert.True(t, apperr.IsValidation(err))

	unbooked := c.UnbookedLines()
	require.Len(t, unbooked, 1)
	assert.Equal(t, fresh.ID, unbooked[0].ID)
}

func TestSetQuantityZeroRemoves(t *testing.T) {
	c := New(100)
	line, err := c.AddLine(shampoo())
	require.NoError(t, err)

	require.NoError(t, c.SetQuantity(line.ID, 3))
	assert.Equal(t, 3, c.Lines()[0].Qty)

	require.NoError(t, c.SetQuantity(line.ID, 0))
	assert.Empty(t, c.Lines())

	assert.Error(t, c.RemoveLine(line.ID))
}

func TestDerivedTotals(t *testing.T) {
	c := New(100)
	cut, err := c.AddLine(haircut("stf-ana"))
	require.NoError(t, err)
	_, err = c.AddLine(Candidate{Kind: domain.ItemKindProduct, RefID: "prd-serum", UnitPriceCents: 12345, Qty: 2, TaxRatePercent: 5})
	require.NoError(t, err)

	require.NoError(t, c.SetLineDiscount(cut.ID, 5000))
	require.NoError(t, c.SetGlobalDiscount(1000))

	// subtotal 50000 + 24690
	assert.Equal(t, int64(74690), c.Subtotal())
	// tax: round(45000*18/118)=6864, round(24690*5/105)=1176
	assert.Equal(t, int64(6864+1176), c.Tax())
	assert.Equal(t, int64(5000+1000), c.Discount())
	// 68690 rounds to 68700
	assert.Equal(t, int64(68700), c.Total())

	totals := c.Totals()
	assert.Equal(t, totals.RoundedTotalCents,
		totals.SubtotalCents-totals.DiscountCents+totals.TaxCents+totals.RoundingAdjustmentCents)
}

func TestDiscountBounds(t *testing.T) {
	c := New(100)
	line, err := c.AddLine(shampoo())
	require.NoError(t, err)

	assert.True(t, apperr.IsValidation(c.SetLineDiscount(line.ID, 32001)))
	assert.True(t, apperr.IsValidation(c.SetLineDiscount(line.ID, -1)))
	assert.True(t, apperr.IsValidation(c.SetGlobalDiscount(40000)))
	assert.True(t, apperr.IsValidation(c.SetGlobalDiscount(-5)))
	require.NoError(t, c.SetGlobalDiscount(32000))
	assert.Zero(t, c.Total())
}

func TestGlobalDiscountStaysWithinCartValue(t *testing.T) {
	c := New(100)
	line, err := c.AddLine(Candidate{Kind: domain.ItemKindProduct, RefID: "prd-a", UnitPriceCents: 10000})
	require.NoError(t, err)
	require.NoError(t, c.SetGlobalDiscount(8000))
	assert.True(t, apperr.IsValidation(c.SetLineDiscount(line.ID, 10000)))
	assert.Zero(t, c.Lines()[0].DiscountCents)

	require.NoError(t, c.SetQuantity(line.ID, 2))
	require.NoError(t, c.SetGlobalDiscount(12000))
	assert.True(t, apperr.IsValidation(c.SetQuantity(line.ID, 1)))
	assert.Equal(t, 2, c.Lines()[0].Qty)

	require.NoError(t, c.SetLineDiscount(line.ID, 4000))
	assert.True(t, apperr.IsValidation(c.SetLineDiscount(line.ID, 10000)))
	assert.Equal(t, int64(4000), c.Lines()[0].DiscountCents)

	assert.True(t, apperr.IsValidation(c.RemoveLine(line.ID)))
	assert.True(t, apperr.IsValidation(c.SetQuantity(line.ID, 0)))
	require.Len(t, c.Lines(), 1)

	totals := c.Totals()
	assert.Equal(t, totals.RoundedTotalCents,
		totals.SubtotalCents-totals.DiscountCents+totals.TaxCents+totals.RoundingAdjustmentCents)
	assert.Zero(t, totals.RoundedTotalCents)

	require.NoError(t, c.SetGlobalDiscount(0))
	require.NoError(t, c.RemoveLine(line.ID))
	assert.Empty(t, c.Lines())
}

func TestHeldLinesRefuseEdits(t *testing.T) {
	c := New(100)
	line, err := c.AddLine(shampoo())
	require.NoError(t, err)
	c.Hold([]string{line.ID})

	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(c.SetQuantity(line.ID, 2)))
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(c.SetLineDiscount(line.ID, 100)))
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(c.RemoveLine(line.ID)))
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(c.SetGlobalDiscount(100)))

	extra, err := c.AddLine(Candidate{Kind: domain.ItemKindProduct, RefID: "prd-b", UnitPriceCents: 5000})
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity(extra.ID, 2))

	c.Unhold()
	require.NoError(t, c.SetQuantity(line.ID, 2))

	c.Hold([]string{line.ID})
	c.MarkBooked([]string{line.ID})
	unbooked := c.UnbookedLines()
	require.Len(t, unbooked, 1)
	assert.Equal(t, extra.ID, unbooked[0].ID)
	require.NoError(t, c.SetGlobalDiscount(1000))
}

func TestAssignStaffAndContributions(t *testing.T) {
	c := New(100)
	cut, err := c.AddLine(haircut(""))
	require.NoError(t, err)
	product, err := c.AddLine(shampoo())
	require.NoError(t, err)

	require.NoError(t, c.AssignStaff(cut.ID, "stf-ana"))
	assert.True(t, apperr.IsValidation(c.AssignStaff(product.ID, "stf-ana")))

	drafts := []domain.ContributionDraft{
		{StaffID: "stf-ana", Role: "stylist", Sequence: 1, SplitType: domain.SplitPercentage, Percent: 70},
		{StaffID: "stf-ben", Role: "assistant", Sequence: 2, SplitType: domain.SplitPercentage, Percent: 30},
	}
	require.NoError(t, c.SetContributions(cut.ID, drafts))

	line := c.Lines()[0]
	assert.True(t, line.MultiStaff)
	assert.Empty(t, line.StaffID)
	assert.Len(t, line.Contributions, 2)

	drafts[0].Percent = 10
	assert.Equal(t, 70, c.Lines()[0].Contributions[0].Percent)

	assert.True(t, apperr.IsValidation(c.AssignStaff(cut.ID, "stf-cy")))
}

func TestSetContributionsRejectsBadDrafts(t *testing.T) {
	c := New(100)
	cut, err := c.AddLine(haircut(""))
	require.NoError(t, err)

	err = c.SetContributions(cut.ID, []domain.ContributionDraft{
		{StaffID: "", Sequence: 1, SplitType: domain.SplitFixed, FixedCents: 40000},
		{StaffID: "stf-ben", Sequence: 1, SplitType: "random"},
		{StaffID: "stf-cy", Sequence: 2, SplitType: domain.SplitFixed, FixedCents: 20000},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	msg := err.Error()
	assert.Contains(t, msg, "staff id is required")
	assert.Contains(t, msg, "used twice")
	assert.Contains(t, msg, "unknown split type")
	assert.Contains(t, msg, "exceed line total")

	assert.Equal(t, apperr.CodeIncomplete, apperr.CodeOf(c.SetContributions(cut.ID, nil)))
	assert.False(t, c.Lines()[0].MultiStaff)
}

func TestSetCustomer(t *testing.T) {
	c := New(0)
	c.SetCustomer("cus-1", "Mira", "+91 90000 00000")
	assert.Equal(t, domain.Customer{ID: "cus-1", Name: "Mira", Phone: "+91 90000 00000"}, c.Customer())
	assert.Equal(t, int64(100), c.Unit())
}

func TestAddLineValidation(t *testing.T) {
	c := New(100)
	_, err := c.AddLine(Candidate{Kind: "voucher", UnitPriceCents: -1})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	_, err = c.AddLine(Candidate{Kind: domain.ItemKindProduct, RefID: "prd-x", StaffID: "stf-ana"})
	assert.Error(t, err)
}
