// Package storetest holds behaviour checks every store.Repository
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

// Run exercises repo. Every call uses fresh ids so it can run against a
// shared database.
func Run(t *testing.T, repo store.Repository) {
	t.Helper()
	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-it-%d", stamp)

	t.Run("create bill is idempotent", func(t *testing.T) { testCreateBillIdempotent(t, repo, storeID) })
	t.Run("payments post the bill", func(t *testing.T) { testPaymentsPost(t, repo, storeID) })
	t.Run("transitions check the current status", func(t *testing.T) { testTransitions(t, repo, storeID) })
	t.Run("roster upserts", func(t *testing.T) { testRoster(t, repo, storeID) })
	t.Run("shift close stores the count", func(t *testing.T) { testShifts(t, repo, storeID) })
	t.Run("audit logs", func(t *testing.T) { testAudit(t, repo, storeID) })
	t.Run("incomplete records are invalid input", func(t *testing.T) { testInvalidInput(t, repo, storeID) })
}

// NewBill builds a 10000 draft bill with a split service line.
func NewBill(storeID string) domain.Bill {
	id := xid.New("bill")
	return domain.Bill{
		ID:             id,
		StoreID:        storeID,
		TerminalID:     "T-1",
		SessionRef:     "sess-" + id,
		IdempotencyKey: "idem-" + id,
		Customer:       &domain.Customer{Name: "Rina", Phone: "0812"},
		Status:         domain.BillStatusDraft,
		Items: []domain.BillItem{{
			LineID:         "line-1",
			Kind:           domain.ItemKindService,
			RefID:          "svc-balayage",
			Name:           "Balayage",
			UnitPriceCents: 10000,
			Qty:            1,
			LineTotalCents: 10000,
			Contributions: []domain.Contribution{
				{ContributionDraft: domain.ContributionDraft{StaffID: "stf-ana", Role: "stylist", Sequence: 1, SplitType: domain.SplitEqual}, AmountCents: 5000},
				{ContributionDraft: domain.ContributionDraft{StaffID: "stf-ben", Role: "colorist", Sequence: 2, SplitType: domain.SplitEqual}, AmountCents: 5000},
			},
		}},
		SubtotalCents:     10000,
		RoundedTotalCents: 10000,
		CreatedBy:         "cashier",
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateBillIdempotent(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	bill := NewBill(storeID)

	created, err := repo.CreateBill(ctx, bill)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, created.ID)
	require.Len(t, created.Items, 1)
	require.Len(t, created.Items[0].Contributions, 2)
	assert.Equal(t, int64(5000), created.Items[0].Contributions[1].AmountCents)
	require.NotNil(t, created.Customer)
	assert.Equal(t, "Rina", created.Customer.Name)

	retry := bill
	retry.ID = xid.New("bill")
	again, err := repo.CreateBill(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, again.ID)

	_, err = repo.FindBillByID(ctx, retry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	byKey, err := repo.FindBillByIdempotency(ctx, bill.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, byKey.ID)

	empty := NewBill(storeID)
	empty.Items = nil
	_, err = repo.CreateBill(ctx, empty)
	assert.ErrorIs(t, err, store.ErrInvalidBill)
}

func testPaymentsPost(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	bill := NewBill(storeID)
	bill.ShiftID = "shift-" + bill.ID
	_, err := repo.CreateBill(ctx, bill)
	require.NoError(t, err)

	_, err = repo.AppendPayment(ctx, bill.ID, domain.Payment{Method: domain.PaymentCard, AmountCents: 10001})
	assert.ErrorIs(t, err, store.ErrInvalidBill)

	got, err := repo.AppendPayment(ctx, bill.ID, domain.Payment{Method: domain.PaymentCash, AmountCents: 3000})
	require.NoError(t, err)
	assert.Equal(t, domain.BillStatusDraft, got.Status)
	assert.Equal(t, int64(7000), got.RemainingCents())

	got, err = repo.AppendPayment(ctx, bill.ID, domain.Payment{Method: domain.PaymentCard, AmountCents: 7000, Reference: "auth-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.BillStatusPosted, got.Status)
	assert.Zero(t, got.RemainingCents())
	assert.NotNil(t, got.PostedAt)
	require.Len(t, got.Payments, 2)

	_, err = repo.AppendPayment(ctx, bill.ID, domain.Payment{Method: domain.PaymentCash, AmountCents: 1})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = repo.AppendPayment(ctx, "bill-missing", domain.Payment{Method: domain.PaymentCash, AmountCents: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	cash, err := repo.SumCashByShift(ctx, bill.ShiftID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), cash)
}

func testTransitions(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	bill := NewBill(storeID)
	_, err := repo.CreateBill(ctx, bill)
	require.NoError(t, err)

	_, err = repo.TransitionBill(ctx, bill.ID, domain.BillStatusPosted, domain.BillStatusRefunded, "wrong state", time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrConflict)

	voided, err := repo.TransitionBill(ctx, bill.ID, domain.BillStatusDraft, domain.BillStatusVoid, "walked out", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.BillStatusVoid, voided.Status)
	assert.Equal(t, "walked out", voided.VoidReason)
	assert.NotNil(t, voided.ClosedAt)

	_, err = repo.TransitionBill(ctx, "bill-missing", domain.BillStatusDraft, domain.BillStatusVoid, "", time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrNotFound)

	bills, err := repo.ListBills(ctx, storeID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 50)
	require.NoError(t, err)
	assert.NotEmpty(t, bills)
}

func testRoster(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	require.NoError(t, repo.UpsertStaff(ctx, storeID, domain.Staff{ID: "stf-ana", Name: "Ana", Role: "stylist", Active: true}))
	require.NoError(t, repo.UpsertStaff(ctx, storeID, domain.Staff{ID: "stf-ben", Name: "Ben", Role: "colorist", Active: true}))
	require.NoError(t, repo.UpsertStaff(ctx, storeID, domain.Staff{ID: "stf-ana", Name: "Ana P", Role: "stylist", Active: false}))
	assert.ErrorIs(t, repo.UpsertStaff(ctx, storeID, domain.Staff{ID: "stf-x"}), store.ErrInvalidInput)

	staff, err := repo.ListStaff(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "Ana P", staff[0].Name)
	assert.False(t, staff[0].Active)

	require.NoError(t, repo.UpsertRoleTemplate(ctx, storeID, domain.RoleTemplate{ServiceID: "svc-balayage", Name: "Balayage", RequiredRoles: []string{"stylist", "colorist"}}))
	templates, err := repo.ListRoleTemplates(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, []string{"stylist", "colorist"}, templates[0].RequiredRoles)
}

func testShifts(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	opened, err := repo.CreateShift(ctx, domain.Shift{StoreID: storeID, TerminalID: "T-9", CashierName: "Sari", OpeningFloatCents: 50000})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusOpen, opened.Status)

	_, err = repo.CreateShift(ctx, domain.Shift{StoreID: storeID, TerminalID: "T-9", CashierName: "Sari"})
	assert.ErrorIs(t, err, store.ErrConflict)

	active, err := repo.GetActiveShift(ctx, storeID, "T-9")
	require.NoError(t, err)
	assert.Equal(t, opened.ID, active.ID)

	closedAt := time.Now().UTC().Truncate(time.Millisecond)
	closed, err := repo.CloseActiveShift(ctx, domain.Shift{
		StoreID:           storeID,
		TerminalID:        "T-9",
		Denominations:     map[int64]int{50: 2, 100: 1, 500: 3},
		CountedCashCents:  1700,
		ExpectedCashCents: 1500,
		VarianceCents:     200,
		ClosedAt:          &closedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusClosed, closed.Status)
	assert.Equal(t, map[int64]int{50: 2, 100: 1, 500: 3}, closed.Denominations)
	assert.Equal(t, int64(200), closed.VarianceCents)

	_, err = repo.GetActiveShift(ctx, storeID, "T-9")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.CloseActiveShift(ctx, domain.Shift{StoreID: storeID, TerminalID: "T-9"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAudit(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	require.NoError(t, repo.CreateAuditLog(ctx, domain.AuditLog{
		StoreID:       storeID,
		ActorUsername: "manager",
		ActorRole:     "manager",
		Action:        "bill.void",
		EntityType:    "bill",
		EntityID:      "bill-1",
	}))
	logs, err := repo.ListAuditLogs(ctx, storeID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "bill.void", logs[0].Action)
}

func testInvalidInput(t *testing.T, repo store.Repository, storeID string) {
	ctx := context.Background()
	_, createErr := repo.CreateShift(ctx, domain.Shift{StoreID: storeID})
	_, closeErr := repo.CloseActiveShift(ctx, domain.Shift{StoreID: storeID})
	errs := map[string]error{
		"staff":         repo.UpsertStaff(ctx, storeID, domain.Staff{ID: "stf-x"}),
		"role template": repo.UpsertRoleTemplate(ctx, storeID, domain.RoleTemplate{Name: "Balayage"}),
		"shift open":    createErr,
		"shift close":   closeErr,
		"user":          repo.CreateUser(ctx, domain.UserAccount{Username: " ", Password: "secret"}),
		"password":      repo.UpdateUserPassword(ctx, "", "secret"),
	}
	for name, err := range errs {
		assert.ErrorIs(t, err, store.ErrInvalidInput, name)
		assert.NotErrorIs(t, err, store.ErrInvalidBill, name)
	}
}
