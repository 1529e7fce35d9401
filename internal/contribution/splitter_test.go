package contribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

func testRoster() *StaticRoster {
	return NewStaticRoster(
		[]domain.Staff{
			{ID: "stf-ana", Name: "Ana", Role: "stylist", Active: true},
			{ID: "stf-ben", Name: "Ben", Role: "colorist", Active: true},
			{ID: "stf-cy", Name: "Cy", Role: "assistant", Active: true},
			{ID: "stf-old", Name: "Former", Role: "stylist", Active: false},
		},
		[]domain.RoleTemplate{
			{ServiceID: "svc-balayage", Name: "Balayage", RequiredRoles: []string{"stylist", "colorist"}},
		},
	)
}

func sumOf(contributions []domain.Contribution) int64 {
	var sum int64
	for _, c := range contributions {
		sum += c.AmountCents
	}
	return sum
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		serviceID    string
		lineTotal    int64
		drafts       []domain.ContributionDraft
		wantCode     apperr.Code
		validateFunc func(t *testing.T, got []domain.Contribution)
	}{
		{
			name:      "percentage",
			serviceID: "svc-balayage",
			lineTotal: 12345,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Role: "stylist", Sequence: 1, SplitType: domain.SplitPercentage, Percent: 60},
				{StaffID: "stf-ben", Role: "colorist", Sequence: 2, SplitType: domain.SplitPercentage, Percent: 40},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				assert.Equal(t, int64(7407), got[0].AmountCents)
				assert.Equal(t, int64(4938), got[1].AmountCents)
			},
		},
		{
			name:      "fixed plus equal remainder",
			lineTotal: 10000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-cy", Sequence: 3, SplitType: domain.SplitFixed, FixedCents: 1000},
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitEqual},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitEqual},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				require.Equal(t, "stf-ana", got[0].StaffID)
				assert.Equal(t, int64(4500), got[0].AmountCents)
				assert.Equal(t, int64(4500), got[1].AmountCents)
				assert.Equal(t, int64(1000), got[2].AmountCents)
			},
		},
		{
			name:      "equal split is exact and the last sequence takes the remainder",
			lineTotal: 10001,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-cy", Sequence: 3, SplitType: domain.SplitEqual},
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitEqual},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitEqual},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				assert.Equal(t, int64(10001), sumOf(got))
				assert.Equal(t, int64(3334), got[0].AmountCents)
				assert.Equal(t, int64(3334), got[1].AmountCents)
				assert.Equal(t, "stf-cy", got[2].StaffID)
				assert.Equal(t, int64(3333), got[2].AmountCents)
			},
		},
		{
			name:      "time based",
			lineTotal: 9999,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitTimeBased, Minutes: 45},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitTimeBased, Minutes: 30},
				{StaffID: "stf-cy", Sequence: 3, SplitType: domain.SplitTimeBased, Minutes: 15},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				assert.Equal(t, int64(5000), got[0].AmountCents)
				assert.Equal(t, int64(3333), got[1].AmountCents)
				assert.Equal(t, int64(1666), got[2].AmountCents)
				assert.Equal(t, int64(9999), sumOf(got))
			},
		},
		{
			name:      "hybrid single staff takes the full pool",
			lineTotal: 10000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitHybrid, Percent: 100, Minutes: 60, SkillPercent: 100},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				c := got[0]
				assert.Equal(t, int64(4000), c.BaseCents)
				assert.Equal(t, int64(3000), c.TimeCents)
				assert.Equal(t, int64(3000), c.SkillCents)
				assert.Equal(t, int64(10000), c.AmountCents)
			},
		},
		{
			name:      "hybrid two staff keeps components",
			lineTotal: 20000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitHybrid, Percent: 70, Minutes: 40, SkillPercent: 60},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitHybrid, Percent: 30, Minutes: 20, SkillPercent: 40},
			},
			validateFunc: func(t *testing.T, got []domain.Contribution) {
				for _, c := range got {
					assert.Equal(t, c.AmountCents, c.BaseCents+c.TimeCents+c.SkillCents)
				}
				assert.Equal(t, int64(5600), got[0].BaseCents)
				assert.Equal(t, int64(4000), got[0].TimeCents)
				assert.Equal(t, int64(3600), got[0].SkillCents)
				assert.InDelta(t, 20000, sumOf(got), float64(Tolerance))
			},
		},
		{
			name:      "unknown staff is incomplete",
			lineTotal: 5000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ghost", Sequence: 1, SplitType: domain.SplitEqual},
			},
			wantCode: apperr.CodeIncomplete,
		},
		{
			name:      "inactive staff is incomplete",
			lineTotal: 5000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-old", Sequence: 1, SplitType: domain.SplitEqual},
			},
			wantCode: apperr.CodeIncomplete,
		},
		{
			name:      "uncovered template role is incomplete",
			serviceID: "svc-balayage",
			lineTotal: 5000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitEqual},
				{StaffID: "stf-cy", Sequence: 2, SplitType: domain.SplitEqual},
			},
			wantCode: apperr.CodeIncomplete,
		},
		{
			name:     "no assignments is incomplete",
			wantCode: apperr.CodeIncomplete,
		},
		{
			name:      "percentages short of the line total are surfaced",
			lineTotal: 10000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitPercentage, Percent: 50},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitPercentage, Percent: 40},
			},
			wantCode: apperr.CodeValidation,
		},
		{
			name:      "time based without minutes",
			lineTotal: 10000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitTimeBased},
			},
			wantCode: apperr.CodeValidation,
		},
		{
			name:      "equal mixed with time based",
			lineTotal: 10000,
			drafts: []domain.ContributionDraft{
				{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitTimeBased, Minutes: 10},
				{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitEqual},
			},
			wantCode: apperr.CodeValidation,
		},
	}

	splitter := NewSplitter(testRoster())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitter.Split(tt.serviceID, tt.lineTotal, tt.drafts)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
				assert.True(t, apperr.IsValidation(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.drafts))
			for i := 1; i < len(got); i++ {
				assert.Less(t, got[i-1].Sequence, got[i].Sequence)
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, got)
			}
		})
	}
}

func TestSplitStaysWithinToleranceForEverySplitType(t *testing.T) {
	splitter := NewSplitter(testRoster())
	staff := []string{"stf-ana", "stf-ben", "stf-cy"}

	build := func(kind domain.SplitType, n int, lineTotal int64) []domain.ContributionDraft {
		drafts := make([]domain.ContributionDraft, 0, n)
		percents := [][]int{{100}, {55, 45}, {34, 33, 33}}[n-1]
		skills := [][]int{{100}, {50, 50}, {40, 30, 30}}[n-1]
		var fixedGiven int64
		for i := 0; i < n; i++ {
			d := domain.ContributionDraft{StaffID: staff[i], Sequence: i + 1, SplitType: kind}
			switch kind {
			case domain.SplitPercentage:
				d.Percent = percents[i]
			case domain.SplitFixed:
				if i == n-1 {
					d.FixedCents = lineTotal - fixedGiven
				} else {
					d.FixedCents = lineTotal / int64(n)
					fixedGiven += d.FixedCents
				}
			case domain.SplitTimeBased:
				d.Minutes = 10*i + 7
			case domain.SplitHybrid:
				d.Percent = percents[i]
				d.Minutes = 10*i + 7
				d.SkillPercent = skills[i]
			}
			drafts = append(drafts, d)
		}
		return drafts
	}

	kinds := []domain.SplitType{
		domain.SplitPercentage,
		domain.SplitFixed,
		domain.SplitEqual,
		domain.SplitTimeBased,
		domain.SplitHybrid,
	}
	totals := []int64{0, 1, 99, 1000, 10001, 12345, 99999, 250007}

	for _, kind := range kinds {
		for n := 1; n <= 3; n++ {
			for _, total := range totals {
				got, err := splitter.Split("", total, build(kind, n, total))
				require.NoError(t, err, "%s n=%d total=%d", kind, n, total)
				gap := sumOf(got) - total
				assert.LessOrEqual(t, gap, Tolerance, "%s n=%d total=%d", kind, n, total)
				assert.GreaterOrEqual(t, gap, -Tolerance, "%s n=%d total=%d", kind, n, total)
				if kind == domain.SplitEqual || kind == domain.SplitTimeBased {
					assert.Equal(t, total, sumOf(got))
				}
			}
		}
	}
}

func TestCheckStaff(t *testing.T) {
	splitter := NewSplitter(testRoster())

	require.NoError(t, splitter.CheckStaff("stf-ana"))

	for _, id := range []string{"stf-old", "stf-nobody"} {
		err := splitter.CheckStaff(id)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeIncomplete, apperr.CodeOf(err), id)
	}
}
