package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/cart"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/settlement"
	"salonpos/backend/internal/store/memory"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-test-pass")
	svc := service.New(memory.NewSeeded(), service.Options{})
	return NewRegistry(svc, svc, cfg)
}

func TestOpenRequiresTerminal(t *testing.T) {
	reg := newTestRegistry(t, Config{})

	_, _, err := reg.Open(context.Background(), "", " ", "cashier")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestSessionSettlesAgainstService(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	ctx := context.Background()

	processor, info, err := reg.Open(ctx, "", "terminal-1", "cashier")
	require.NoError(t, err)
	assert.Equal(t, "main-store", info.StoreID)

	require.NoError(t, processor.WithCart(func(c *cart.Cart) error {
		line, err := c.AddLine(cart.Candidate{Kind: domain.ItemKindService, RefID: "svc-balayage", Name: "Balayage", UnitPriceCents: 20000, Qty: 1, MultiStaff: true})
		if err != nil {
			return err
		}
		return c.SetContributions(line.ID, []domain.ContributionDraft{
			{StaffID: "stf-ana", Sequence: 1, SplitType: domain.SplitEqual},
			{StaffID: "stf-ben", Sequence: 2, SplitType: domain.SplitEqual},
		})
	}))

	res := processor.CreateBillOnce(ctx)
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, int64(20000), res.State.RemainingCents)

	res = processor.ApplyPayment(ctx, domain.PaymentCash, 25000, "")
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, int64(5000), res.ChangeCents)
	assert.Equal(t, domain.BillStatusPosted, res.State.Status)

	same, err := reg.Get(info.ID)
	require.NoError(t, err)
	assert.Same(t, processor, same)
}

func TestCloseForgetsSession(t *testing.T) {
	reg := newTestRegistry(t, Config{})

	_, info, err := reg.Open(context.Background(), "main-store", "terminal-1", "cashier")
	require.NoError(t, err)
	require.Len(t, reg.List("main-store"), 1)

	state, err := reg.Close(info.ID)
	require.NoError(t, err)
	assert.True(t, state.Closed)

	_, err = reg.Get(info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Close(info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, reg.List(""))
}

func TestSweepClosesIdleSessions(t *testing.T) {
	reg := newTestRegistry(t, Config{IdleTTL: time.Minute})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	stale, staleInfo, err := reg.Open(context.Background(), "", "terminal-1", "cashier")
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	_, freshInfo, err := reg.Open(context.Background(), "", "terminal-2", "cashier")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, reg.Sweep())

	_, err = reg.Get(staleInfo.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, stale.State().Closed)

	_, err = reg.Get(freshInfo.ID)
	assert.NoError(t, err)
}

func TestCloseAll(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	p, _, err := reg.Open(context.Background(), "", "terminal-1", "cashier")
	require.NoError(t, err)

	reg.CloseAll()

	assert.Empty(t, reg.List(""))
	err = p.WithCart(func(*cart.Cart) error { return nil })
	assert.ErrorIs(t, err, settlement.ErrSessionClosed)
}
