// Package contribution splits a multi-staff service line into per-staff
// shares.
package contribution

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/money"
)

// Tolerance is the largest allowed gap, in minor units, between the sum of
// contributions and the line total.
const Tolerance int64 = 10

// HybridWeights weight the base, time and skill components of a hybrid split.
type HybridWeights struct {
	Base  decimal.Decimal
	Time  decimal.Decimal
	Skill decimal.Decimal
}

func DefaultHybridWeights() HybridWeights {
	return HybridWeights{
		Base:  decimal.RequireFromString("0.40"),
		Time:  decimal.RequireFromString("0.30"),
		Skill: decimal.RequireFromString("0.30"),
	}
}

type Splitter struct {
	roster  Roster
	weights HybridWeights
}

func NewSplitter(roster Roster) *Splitter {
	return &Splitter{roster: roster, weights: DefaultHybridWeights()}
}

func (s *Splitter) WithHybridWeights(weights HybridWeights) *Splitter {
	s.weights = weights
	return s
}

// Split computes the contribution of every assignment on a service line.
// The result is ordered by ascending sequence.
func (s *Splitter) Split(serviceID string, lineTotal int64, drafts []domain.ContributionDraft) ([]domain.Contribution, error) {
	if lineTotal < 0 {
		return nil, apperr.Newf(apperr.CodeValidation, "line total %d must not be negative", lineTotal)
	}
	if err := s.checkComplete(serviceID, drafts); err != nil {
		return nil, err
	}

	ordered := make([]domain.ContributionDraft, len(drafts))
	copy(ordered, drafts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	out := make([]domain.Contribution, len(ordered))
	var (
		direct       int64
		equalIdx     []int
		timeIdx      []int
		timeMinutes  int64
		hybridMinute int64
	)
	for i, draft := range ordered {
		if !draft.SplitType.IsValid() {
			return nil, apperr.Newf(apperr.CodeValidation, "staff %s has unknown split type %q", draft.StaffID, draft.SplitType)
		}
		out[i] = domain.Contribution{ContributionDraft: draft}
		switch draft.SplitType {
		case domain.SplitEqual:
			equalIdx = append(equalIdx, i)
		case domain.SplitTimeBased:
			timeIdx = append(timeIdx, i)
			timeMinutes += int64(draft.Minutes)
		case domain.SplitHybrid:
			hybridMinute += int64(draft.Minutes)
		}
	}
	if len(equalIdx) > 0 && len(timeIdx) > 0 {
		return nil, apperr.New(apperr.CodeValidation, "equal and time_based splits cannot share a line")
	}
	if len(timeIdx) > 0 && timeMinutes <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "time_based split needs minutes spent")
	}

	for i := range out {
		c := &out[i]
		switch c.SplitType {
		case domain.SplitPercentage:
			c.AmountCents = money.Percent(lineTotal, c.Percent)
		case domain.SplitFixed:
			c.AmountCents = c.FixedCents
		case domain.SplitHybrid:
			s.applyHybrid(c, lineTotal, hybridMinute)
		default:
			continue
		}
		direct += c.AmountCents
	}

	pool := lineTotal - direct
	if pool < 0 {
		pool = 0
	}
	if len(equalIdx) > 0 {
		distribute(out, equalIdx, pool, func(int) int64 { return money.RoundRatio(pool, int64(len(equalIdx))) })
	}
	if len(timeIdx) > 0 {
		distribute(out, timeIdx, pool, func(i int) int64 {
			return money.Share(pool, int64(out[i].Minutes), timeMinutes)
		})
	}

	var sum int64
	for _, c := range out {
		sum += c.AmountCents
	}
	if gap := sum - lineTotal; gap > Tolerance || gap < -Tolerance {
		return nil, apperr.Newf(apperr.CodeValidation, "contributions sum to %d, line total is %d", sum, lineTotal).
			WithDetails(map[string]any{"sum_cents": sum, "line_total_cents": lineTotal})
	}
	return out, nil
}

// distribute gives every index but the last its computed share and hands the
// remainder of pool to the last (highest sequence) entry.
func distribute(out []domain.Contribution, idx []int, pool int64, share func(i int) int64) {
	var given int64
	for n, i := range idx {
		if n == len(idx)-1 {
			out[i].AmountCents = pool - given
			return
		}
		out[i].AmountCents = share(i)
		given += out[i].AmountCents
	}
}

func (s *Splitter) applyHybrid(c *domain.Contribution, lineTotal int64, totalMinutes int64) {
	baseComponent := decimal.NewFromInt(lineTotal).Mul(decimal.NewFromInt(int64(c.Percent))).Div(decimal.NewFromInt(100))
	c.BaseCents = baseComponent.Mul(s.weights.Base).Round(0).IntPart()

	if totalMinutes > 0 {
		timeComponent := decimal.NewFromInt(lineTotal).Mul(decimal.NewFromInt(int64(c.Minutes))).Div(decimal.NewFromInt(totalMinutes))
		c.TimeCents = timeComponent.Mul(s.weights.Time).Round(0).IntPart()
	}

	skillComponent := decimal.NewFromInt(lineTotal).Mul(decimal.NewFromInt(int64(c.SkillPercent))).Div(decimal.NewFromInt(100))
	c.SkillCents = skillComponent.Mul(s.weights.Skill).Round(0).IntPart()

	c.AmountCents = c.BaseCents + c.TimeCents + c.SkillCents
}

// checkComplete refuses to split when a staff id is unknown or a role the
// service template requires has nobody assigned.
func (s *Splitter) checkComplete(serviceID string, drafts []domain.ContributionDraft) error {
	if len(drafts) == 0 {
		return apperr.New(apperr.CodeIncomplete, "no staff assigned to multi-staff line")
	}

	var unknown []string
	covered := make(map[string]bool, len(drafts))
	for _, draft := range drafts {
		member, ok := s.roster.StaffByID(draft.StaffID)
		if !ok || !member.Active {
			unknown = append(unknown, draft.StaffID)
			continue
		}
		role := draft.Role
		if role == "" {
			role = member.Role
		}
		covered[normalizeRole(role)] = true
	}

	var missing []string
	if tpl, ok := s.roster.TemplateFor(serviceID); ok {
		for _, role := range tpl.RequiredRoles {
			if !covered[normalizeRole(role)] {
				missing = append(missing, role)
			}
		}
	}

	if len(unknown) == 0 && len(missing) == 0 {
		return nil
	}
	return apperr.New(apperr.CodeIncomplete, fmt.Sprintf("incomplete assignment for service %s", serviceID)).
		WithDetails(map[string]any{"unknown_staff": unknown, "missing_roles": missing})
}

// CheckStaff reports an incomplete assignment when a single-staff line names
// someone who is not on the active roster.
func (s *Splitter) CheckStaff(staffID string) error {
	if member, ok := s.roster.StaffByID(staffID); ok && member.Active {
		return nil
	}
	return apperr.Newf(apperr.CodeIncomplete, "staff %s is not on the active roster", staffID).
		WithDetails(map[string]any{"unknown_staff": []string{staffID}})
}
