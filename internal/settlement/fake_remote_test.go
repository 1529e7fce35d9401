package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/lifecycle"
	"salonpos/backend/internal/money"
)

// fakeRemote is an in-memory bill service that counts calls per operation.
type fakeRemote struct {
	mu    sync.Mutex
	bills map[string]*domain.Bill
	keys  map[string]string
	calls map[string]int
	seq   int

	// failNext, when set, is returned by the next call and cleared.
	failNext error
	// dropReply, when set, lets the next create succeed and then returns
	// the error in place of the reply.
	dropReply error
	// gate, when set, blocks every call until it is closed.
	gate    chan struct{}
	entered chan string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		bills: make(map[string]*domain.Bill),
		keys:  make(map[string]string),
		calls: make(map[string]int),
	}
}

func (f *fakeRemote) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate, entered := f.gate, f.entered
	err := f.failNext
	f.failNext = nil
	f.mu.Unlock()

	if entered != nil {
		entered <- op
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.BillRef, error) {
	if err := f.enter(ctx, "create"); err != nil {
		return domain.BillRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.keys[req.IdempotencyKey]; ok {
		bill := f.bills[id]
		return domain.BillRef{ID: id, Status: bill.Status, RoundedTotalCents: bill.RoundedTotalCents, RemainingCents: bill.RemainingCents(), Duplicate: true}, nil
	}

	lines := make([]money.Line, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, money.Line{UnitPriceCents: item.UnitPriceCents, Qty: item.Qty, DiscountCents: item.DiscountCents, TaxRatePercent: item.TaxRatePercent})
	}
	totals := money.Summarize(lines, req.GlobalDiscountCents, money.DefaultUnit)
	f.seq++
	bill := &domain.Bill{
		ID:                fmt.Sprintf("bill-%d", f.seq),
		Status:            domain.BillStatusDraft,
		Items:             req.Items,
		RoundedTotalCents: totals.RoundedTotalCents,
		IdempotencyKey:    req.IdempotencyKey,
	}
	f.bills[bill.ID] = bill
	f.keys[req.IdempotencyKey] = bill.ID
	if err := f.dropReply; err != nil {
		f.dropReply = nil
		return domain.BillRef{}, err
	}
	return domain.BillRef{ID: bill.ID, Status: bill.Status, RoundedTotalCents: bill.RoundedTotalCents, RemainingCents: bill.RemainingCents()}, nil
}

func (f *fakeRemote) ApplyPayment(ctx context.Context, billID string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if err := f.enter(ctx, "payment"); err != nil {
		return domain.PaymentResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return domain.PaymentResult{}, apperr.New(apperr.CodeNotFound, "bill not found")
	}
	if bill.Status != domain.BillStatusDraft {
		return domain.PaymentResult{}, apperr.New(apperr.CodeConflict, "bill is not draft")
	}
	if req.AmountCents > bill.RemainingCents() {
		return domain.PaymentResult{}, apperr.New(apperr.CodeValidation, "payment exceeds remaining")
	}
	payment := domain.Payment{
		ID:          fmt.Sprintf("pay-%d", len(bill.Payments)+1),
		BillID:      billID,
		Method:      req.Method,
		AmountCents: req.AmountCents,
		Reference:   req.Reference,
		CreatedAt:   time.Now().UTC(),
	}
	bill.Payments = append(bill.Payments, payment)
	if bill.RemainingCents() == 0 {
		bill.Status = domain.BillStatusPosted
	}
	return domain.PaymentResult{BillID: billID, Status: bill.Status, RemainingCents: bill.RemainingCents(), Payment: payment}, nil
}

func (f *fakeRemote) GetBill(ctx context.Context, billID string) (domain.Bill, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return domain.Bill{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return domain.Bill{}, apperr.New(apperr.CodeNotFound, "bill not found")
	}
	out := *bill
	out.Payments = append([]domain.Payment(nil), bill.Payments...)
	return out, nil
}

func (f *fakeRemote) VoidBill(ctx context.Context, billID string, _ domain.BillActionRequest) (domain.BillActionResult, error) {
	return f.move(ctx, "void", billID, domain.BillStatusVoid)
}

func (f *fakeRemote) RefundBill(ctx context.Context, billID string, _ domain.BillActionRequest) (domain.BillActionResult, error) {
	return f.move(ctx, "refund", billID, domain.BillStatusRefunded)
}

func (f *fakeRemote) move(ctx context.Context, op, billID string, to domain.BillStatus) (domain.BillActionResult, error) {
	if err := f.enter(ctx, op); err != nil {
		return domain.BillActionResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return domain.BillActionResult{}, apperr.New(apperr.CodeNotFound, "bill not found")
	}
	next, err := lifecycle.Transition(bill.Status, to)
	if err != nil {
		return domain.BillActionResult{}, err
	}
	bill.Status = next
	return domain.BillActionResult{BillID: billID, Status: next, At: time.Now().UTC()}, nil
}
