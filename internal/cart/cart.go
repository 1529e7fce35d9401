// Package cart is the session-scoped cart aggregate. A Cart belongs to one
// checkout session and is not safe for concurrent use.
package cart

import (
	"fmt"

	"go.uber.org/multierr"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/money"
	"salonpos/backend/internal/xid"
)

// Line is one cart entry. DiscountCents is per unit.
type Line struct {
	ID             string                     `json:"id"`
	Kind           domain.ItemKind            `json:"kind"`
	RefID          string                     `json:"ref_id"`
	Name           string                     `json:"name"`
	UnitPriceCents int64                      `json:"unit_price_cents"`
	Qty            int                        `json:"qty"`
	DiscountCents  int64                      `json:"discount_cents"`
	TaxRatePercent int                        `json:"tax_rate_percent"`
	StaffID        string                     `json:"staff_id,omitempty"`
	MultiStaff     bool                       `json:"multi_staff"`
	Contributions  []domain.ContributionDraft `json:"contributions,omitempty"`
	Booked         bool                       `json:"booked"`
}

func (l Line) money() money.Line {
	return money.Line{
		UnitPriceCents: l.UnitPriceCents,
		Qty:            l.Qty,
		DiscountCents:  l.DiscountCents,
		TaxRatePercent: l.TaxRatePercent,
	}
}

// TotalCents is (unit price - discount) x qty.
func (l Line) TotalCents() int64 { return l.money().Total() }

// Candidate describes a line to add.
type Candidate struct {
	Kind           domain.ItemKind            `json:"kind" validate:"required"`
	RefID          string                     `json:"ref_id" validate:"required"`
	Name           string                     `json:"name"`
	UnitPriceCents int64                      `json:"unit_price_cents" validate:"min=0"`
	Qty            int                        `json:"qty" validate:"min=0"`
	TaxRatePercent int                        `json:"tax_rate_percent" validate:"min=0,max=100"`
	StaffID        string                     `json:"staff_id,omitempty"`
	MultiStaff     bool                       `json:"multi_staff"`
	Contributions  []domain.ContributionDraft `json:"contributions,omitempty"`
}

type Cart struct {
	lines          []*Line
	customer       domain.Customer
	globalDiscount int64
	unit           int64

	// held lines belong to a bill submission that has not been confirmed.
	held map[string]struct{}
}

// New returns an empty cart rounding totals to unit minor units.
func New(unit int64) *Cart {
	if unit <= 0 {
		unit = money.DefaultUnit
	}
	return &Cart{unit: unit}
}

// AddLine merges the candidate into a matching unbooked line or appends a new
// one. Products merge on product id, single-staff services on service id and
// staff id. Multi-staff lines never merge.
func (c *Cart) AddLine(candidate Candidate) (Line, error) {
	if candidate.Qty == 0 {
		candidate.Qty = 1
	}
	if err := validateCandidate(candidate); err != nil {
		return Line{}, err
	}

	if !candidate.MultiStaff {
		for _, line := range c.lines {
			if line.Booked || line.MultiStaff || line.Kind != candidate.Kind || line.RefID != candidate.RefID {
				continue
			}
			if line.Kind == domain.ItemKindService && line.StaffID != candidate.StaffID {
				continue
			}
			line.Qty += candidate.Qty
			return cloneLine(line), nil
		}
	}

	line := &Line{
		ID:             xid.New("line"),
		Kind:           candidate.Kind,
		RefID:          candidate.RefID,
		Name:           candidate.Name,
		UnitPriceCents: candidate.UnitPriceCents,
		Qty:            candidate.Qty,
		TaxRatePercent: candidate.TaxRatePercent,
		StaffID:        candidate.StaffID,
		MultiStaff:     candidate.MultiStaff,
	}
	if line.MultiStaff {
		line.StaffID = ""
		if len(candidate.Contributions) > 0 {
			if err := validateDrafts(line.TotalCents(), candidate.Contributions); err != nil {
				return Line{}, err
			}
			line.Contributions = cloneDrafts(candidate.Contributions)
		}
	}
	c.lines = append(c.lines, line)
	return cloneLine(line), nil
}

// RemoveLine drops an unbooked line. The removal is refused when the global
// discount would exceed what is left in the cart.
func (c *Cart) RemoveLine(id string) error {
	if _, err := c.editable(id); err != nil {
		return err
	}
	for i, line := range c.lines {
		if line.ID != id {
			continue
		}
		if ceiling := c.discountCeiling() - line.money().Total(); c.globalDiscount > ceiling {
			return discountExceeds(c.globalDiscount, ceiling)
		}
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		break
	}
	return nil
}

// SetQuantity sets the line quantity; q <= 0 removes the line.
func (c *Cart) SetQuantity(id string, q int) error {
	if q <= 0 {
		return c.RemoveLine(id)
	}
	line, err := c.editable(id)
	if err != nil {
		return err
	}
	prev := line.Qty
	line.Qty = q
	if ceiling := c.discountCeiling(); c.globalDiscount > ceiling {
		line.Qty = prev
		return discountExceeds(c.globalDiscount, ceiling)
	}
	return nil
}

// SetLineDiscount sets the per-unit discount of a line.
func (c *Cart) SetLineDiscount(id string, amount int64) error {
	line, err := c.editable(id)
	if err != nil {
		return err
	}
	if amount < 0 || amount > line.UnitPriceCents {
		return apperr.Newf(apperr.CodeValidation, "line discount %d must be between 0 and %d", amount, line.UnitPriceCents)
	}
	prev := line.DiscountCents
	line.DiscountCents = amount
	if ceiling := c.discountCeiling(); c.globalDiscount > ceiling {
		line.DiscountCents = prev
		return discountExceeds(c.globalDiscount, ceiling)
	}
	return nil
}

// AssignStaff sets the single performing staff member of a service line.
func (c *Cart) AssignStaff(lineID, staffID string) error {
	line, err := c.editable(lineID)
	if err != nil {
		return err
	}
	if line.Kind != domain.ItemKindService {
		return apperr.New(apperr.CodeValidation, "staff can only be assigned to service lines")
	}
	if line.MultiStaff {
		return apperr.New(apperr.CodeValidation, "line is split across staff; set contributions instead")
	}
	line.StaffID = staffID
	return nil
}

// SetContributions replaces the staff assignments of a service line and marks
// it multi-staff.
func (c *Cart) SetContributions(lineID string, drafts []domain.ContributionDraft) error {
	line, err := c.editable(lineID)
	if err != nil {
		return err
	}
	if line.Kind != domain.ItemKindService {
		return apperr.New(apperr.CodeValidation, "contributions apply to service lines only")
	}
	if err := validateDrafts(line.TotalCents(), drafts); err != nil {
		return err
	}
	line.MultiStaff = true
	line.StaffID = ""
	line.Contributions = cloneDrafts(drafts)
	return nil
}

func (c *Cart) SetCustomer(id, name, phone string) {
	c.customer = domain.Customer{ID: id, Name: name, Phone: phone}
}

func (c *Cart) Customer() domain.Customer { return c.customer }

func (c *Cart) SetGlobalDiscount(amount int64) error {
	if amount < 0 {
		return apperr.Newf(apperr.CodeValidation, "discount %d must not be negative", amount)
	}
	if len(c.held) > 0 {
		return errHeld
	}
	if ceiling := c.discountCeiling(); amount > ceiling {
		return discountExceeds(amount, ceiling)
	}
	c.globalDiscount = amount
	return nil
}

func (c *Cart) GlobalDiscount() int64 { return c.globalDiscount }

func (c *Cart) Unit() int64 { return c.unit }

// Lines returns copies of every line, booked or not.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, cloneLine(line))
	}
	return out
}

// UnbookedLines is the candidate set for the next checkout.
func (c *Cart) UnbookedLines() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		if !line.Booked {
			out = append(out, cloneLine(line))
		}
	}
	return out
}

// Hold freezes lines submitted for billing until MarkBooked or Unhold. Held
// lines and the global discount cannot be edited; new lines can still be
// added.
func (c *Cart) Hold(ids []string) {
	if c.held == nil {
		c.held = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		c.held[id] = struct{}{}
	}
}

// Unhold releases every held line after a submission was refused.
func (c *Cart) Unhold() { c.held = nil }

// MarkBooked flags lines as committed to a bill. The global discount travels
// with the bill and is reset.
func (c *Cart) MarkBooked(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, line := range c.lines {
		if _, ok := set[line.ID]; ok {
			line.Booked = true
		}
	}
	c.held = nil
	c.globalDiscount = 0
}

// Totals derives the money view of the unbooked lines plus the global
// discount.
func (c *Cart) Totals() money.Totals {
	lines := make([]money.Line, 0, len(c.lines))
	for _, line := range c.lines {
		if !line.Booked {
			lines = append(lines, line.money())
		}
	}
	return money.Summarize(lines, c.globalDiscount, c.unit)
}

// Subtotal is the sum of unit price x quantity.
func (c *Cart) Subtotal() int64 { return c.Totals().GrossCents }

// Tax is the inclusive tax extracted per line.
func (c *Cart) Tax() int64 { return c.Totals().TaxCents }

// Discount is line discounts x quantity plus the global discount.
func (c *Cart) Discount() int64 { return c.Totals().DiscountCents }

// Total is subtotal minus discount rounded to the currency unit.
func (c *Cart) Total() int64 { return c.Totals().RoundedTotalCents }

func (c *Cart) editable(id string) (*Line, error) {
	for _, line := range c.lines {
		if line.ID != id {
			continue
		}
		if line.Booked {
			return nil, apperr.Newf(apperr.CodeValidation, "line %s is already booked", id)
		}
		if _, ok := c.held[id]; ok {
			return nil, errHeld
		}
		return line, nil
	}
	return nil, unknownLine(id)
}

var errHeld = apperr.New(apperr.CodeStateConflict, "cart is awaiting bill confirmation; retry checkout first")

// discountCeiling is the unbooked value left after line discounts, the most
// the global discount may take.
func (c *Cart) discountCeiling() int64 {
	var ceiling int64
	for _, line := range c.lines {
		if !line.Booked {
			ceiling += line.money().Total()
		}
	}
	return ceiling
}

func discountExceeds(amount, ceiling int64) error {
	return apperr.Newf(apperr.CodeValidation, "discount %d exceeds cart value %d", amount, ceiling)
}

func unknownLine(id string) error {
	return apperr.Newf(apperr.CodeValidation, "line %s not in cart", id)
}

func validateCandidate(candidate Candidate) error {
	var errs error
	if !candidate.Kind.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown item kind %q", candidate.Kind))
	}
	if candidate.RefID == "" {
		errs = multierr.Append(errs, fmt.Errorf("reference id is required"))
	}
	if candidate.UnitPriceCents < 0 {
		errs = multierr.Append(errs, fmt.Errorf("unit price must not be negative"))
	}
	if candidate.Qty < 0 {
		errs = multierr.Append(errs, fmt.Errorf("quantity must be positive"))
	}
	if candidate.TaxRatePercent < 0 || candidate.TaxRatePercent > 100 {
		errs = multierr.Append(errs, fmt.Errorf("tax rate must be 0-100"))
	}
	if candidate.Kind == domain.ItemKindProduct && (candidate.MultiStaff || candidate.StaffID != "") {
		errs = multierr.Append(errs, fmt.Errorf("products do not carry staff"))
	}
	if errs != nil {
		return apperr.Wrap(apperr.CodeValidation, errs, "invalid cart line")
	}
	return nil
}

// validateDrafts checks assignment shape. Amounts are computed later by the
// splitter; here only caller errors are caught.
func validateDrafts(lineTotal int64, drafts []domain.ContributionDraft) error {
	if len(drafts) == 0 {
		return apperr.New(apperr.CodeIncomplete, "at least one staff assignment is required")
	}

	var (
		errs  error
		fixed int64
		seen  = make(map[int]bool, len(drafts))
	)
	for _, d := range drafts {
		if d.StaffID == "" {
			errs = multierr.Append(errs, fmt.Errorf("sequence %d: staff id is required", d.Sequence))
		}
		if d.Sequence < 1 {
			errs = multierr.Append(errs, fmt.Errorf("staff %s: sequence must start at 1", d.StaffID))
		} else if seen[d.Sequence] {
			errs = multierr.Append(errs, fmt.Errorf("sequence %d is used twice", d.Sequence))
		}
		seen[d.Sequence] = true
		if !d.SplitType.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("staff %s: unknown split type %q", d.StaffID, d.SplitType))
		}
		if d.Percent < 0 || d.Percent > 100 || d.SkillPercent < 0 || d.SkillPercent > 100 {
			errs = multierr.Append(errs, fmt.Errorf("staff %s: percentages must be 0-100", d.StaffID))
		}
		if d.FixedCents < 0 || d.Minutes < 0 {
			errs = multierr.Append(errs, fmt.Errorf("staff %s: amounts and minutes must not be negative", d.StaffID))
		}
		if d.SplitType == domain.SplitFixed {
			fixed += d.FixedCents
		}
	}
	if fixed > lineTotal {
		errs = multierr.Append(errs, fmt.Errorf("fixed shares %d exceed line total %d", fixed, lineTotal))
	}
	if errs != nil {
		return apperr.Wrap(apperr.CodeValidation, errs, "invalid staff contributions")
	}
	return nil
}

func cloneLine(src *Line) Line {
	out := *src
	out.Contributions = cloneDrafts(src.Contributions)
	return out
}

func cloneDrafts(src []domain.ContributionDraft) []domain.ContributionDraft {
	if src == nil {
		return nil
	}
	out := make([]domain.ContributionDraft, len(src))
	copy(out, src)
	return out
}
