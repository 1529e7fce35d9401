// Package settlement drives one checkout session against the bill service:
// it books the cart once, applies payments, and voids or refunds the bill.
package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/cart"
	"salonpos/backend/internal/contribution"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/lifecycle"
	"salonpos/backend/internal/metrics"
)

// ErrSessionClosed is returned for calls on a closed session and for results
// that arrived after the session was closed.
var ErrSessionClosed = apperr.New(apperr.CodeConflict, "checkout session is closed")

// Remote is the bill service as seen by a checkout session.
type Remote interface {
	CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.BillRef, error)
	ApplyPayment(ctx context.Context, billID string, req domain.PaymentRequest) (domain.PaymentResult, error)
	GetBill(ctx context.Context, billID string) (domain.Bill, error)
	VoidBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error)
	RefundBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error)
}

type Options struct {
	StoreID    string
	TerminalID string
	// Unit is the currency rounding unit in minor units.
	Unit    int64
	Guard   Guard
	Metrics *metrics.Settlement
	Logger  *slog.Logger
}

// Processor owns the cart and bill state of one checkout session. It is safe
// for concurrent use; settlement calls are serialised through the guard.
type Processor struct {
	id         string
	storeID    string
	terminalID string
	remote     Remote
	splitter   *contribution.Splitter
	guard      Guard
	metrics    *metrics.Settlement
	logger     *slog.Logger

	mu        sync.Mutex
	cart      *cart.Cart
	busy      bool
	closed    bool
	billID    string
	status    domain.BillStatus
	total     int64
	remaining int64
	payments  []domain.Payment

	// pending is the bill request awaiting confirmation after a failed
	// create call. Retries resend it unchanged.
	pending *submission
}

type submission struct {
	req     domain.CreateBillRequest
	lineIDs []string
}

func NewProcessor(sessionID string, remote Remote, splitter *contribution.Splitter, opts Options) *Processor {
	if opts.Guard == nil {
		opts.Guard = NewLocalGuard()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		id:         sessionID,
		storeID:    opts.StoreID,
		terminalID: opts.TerminalID,
		remote:     remote,
		splitter:   splitter,
		guard:      opts.Guard,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "settlement", "session", sessionID),
		cart:       cart.New(opts.Unit),
	}
}

func (p *Processor) ID() string { return p.id }

// WithCart runs fn with exclusive access to the cart. Cart edits are refused
// while a settlement call is in flight or after Close.
func (p *Processor) WithCart(fn func(c *cart.Cart) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSessionClosed
	}
	if p.busy {
		return ErrInFlight
	}
	return fn(p.cart)
}

// State returns a snapshot of the session.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// Close ends the session. Results of calls still in flight are discarded.
func (p *Processor) Close() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.snapshot()
}

// CreateBillOnce books the unbooked cart lines as a bill. Once a bill exists
// it returns Ok without contacting the bill service again. The session id is
// sent as the idempotency key so a retry after a failure cannot create a
// second bill. After a transient failure the submitted request and its lines
// are held, and the retry resends exactly that request; lines added in the
// meantime stay unbooked.
func (p *Processor) CreateBillOnce(ctx context.Context) Result {
	release, err := p.begin(ctx)
	if err != nil {
		return p.refuse(err)
	}
	defer release()

	p.mu.Lock()
	if p.billID != "" {
		state := p.snapshot()
		p.mu.Unlock()
		return ok(state)
	}
	sub := p.pending
	if sub == nil {
		req, lineIDs, buildErr := p.buildRequest()
		if buildErr != nil {
			state := p.snapshot()
			p.mu.Unlock()
			return rejected(state, buildErr)
		}
		sub = &submission{req: req, lineIDs: lineIDs}
		p.pending = sub
		p.cart.Hold(lineIDs)
	}
	p.mu.Unlock()

	var ref domain.BillRef
	err = p.call(ctx, "create_bill", func(ctx context.Context) error {
		var callErr error
		ref, callErr = p.remote.CreateBill(ctx, sub.req)
		return callErr
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("discarding bill creation result for closed session", "bill_id", ref.ID, "error", err)
		return rejected(p.snapshot(), ErrSessionClosed)
	}
	if err != nil {
		// A refused payload created nothing; anything else may have.
		if apperr.IsValidation(err) {
			p.pending = nil
			p.cart.Unhold()
		}
		p.logger.Warn("create bill failed", "error", err, "held", p.pending != nil)
		return fromError(p.snapshot(), err)
	}

	p.billID = ref.ID
	p.status = ref.Status
	p.total = ref.RoundedTotalCents
	p.remaining = ref.RemainingCents
	p.pending = nil
	p.cart.MarkBooked(sub.lineIDs)
	p.metrics.IncTransition(string(domain.BillStatusDraft))
	if ref.Status == domain.BillStatusPosted {
		p.metrics.IncTransition(string(domain.BillStatusPosted))
	}
	p.logger.Info("bill created", "bill_id", ref.ID, "total_cents", ref.RoundedTotalCents, "duplicate", ref.Duplicate)
	return ok(p.snapshot())
}

// ApplyPayment records a payment against the session's bill. Cash above the
// remaining balance records only the balance and reports the change; any
// other method above the balance is rejected before the bill service is
// contacted.
func (p *Processor) ApplyPayment(ctx context.Context, method domain.PaymentMethod, amountCents int64, reference string) Result {
	if amountCents <= 0 {
		p.metrics.ObservePayment(string(method), string(OutcomeRejected))
		return rejected(p.State(), apperr.Newf(apperr.CodeValidation, "payment amount %d must be positive", amountCents))
	}
	if !method.IsValid() {
		p.metrics.ObservePayment("", string(OutcomeRejected))
		return rejected(p.State(), apperr.Newf(apperr.CodeValidation, "unknown payment method %q", method))
	}

	release, err := p.begin(ctx)
	if err != nil {
		return p.refuse(err)
	}
	defer release()

	p.mu.Lock()
	billID := p.billID
	remaining := p.remaining
	status := p.status
	state := p.snapshot()
	p.mu.Unlock()

	if billID == "" {
		return rejected(state, apperr.New(apperr.CodeConflict, "no bill has been created for this session"))
	}
	if !lifecycle.AcceptsPayments(status) {
		p.metrics.ObservePayment(string(method), string(OutcomeRejected))
		return rejected(state, apperr.Newf(apperr.CodeStateConflict, "bill is %s and accepts no payments", status))
	}

	record, change := amountCents, int64(0)
	if amountCents > remaining {
		if !method.IsCash() {
			p.metrics.ObservePayment(string(method), string(OutcomeRejected))
			return rejected(state, apperr.Newf(apperr.CodeValidation, "%s payment %d exceeds remaining balance %d", method, amountCents, remaining).
				WithDetails(map[string]int64{"remaining_cents": remaining}))
		}
		record, change = remaining, amountCents-remaining
	}

	var res domain.PaymentResult
	err = p.call(ctx, "apply_payment", func(ctx context.Context) error {
		var callErr error
		res, callErr = p.remote.ApplyPayment(ctx, billID, domain.PaymentRequest{
			Method:      method,
			AmountCents: record,
			Reference:   reference,
		})
		return callErr
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("discarding payment result for closed session", "bill_id", billID, "error", err)
		return rejected(p.snapshot(), ErrSessionClosed)
	}
	if err != nil {
		result := fromError(p.snapshot(), err)
		p.metrics.ObservePayment(string(method), string(result.Outcome))
		p.logger.Warn("payment failed", "bill_id", billID, "method", method, "error", err)
		return result
	}

	p.payments = append(p.payments, res.Payment)
	p.remaining = res.RemainingCents
	p.status = res.Status
	if p.remaining == 0 && p.status == domain.BillStatusDraft {
		p.status = domain.BillStatusPosted
	}
	p.metrics.ObservePayment(string(method), string(OutcomeOk))
	p.metrics.AddRecorded(string(method), record)
	if p.status == domain.BillStatusPosted {
		p.metrics.IncTransition(string(domain.BillStatusPosted))
	}
	p.logger.Info("payment applied", "bill_id", billID, "method", method, "amount_cents", record, "change_cents", change, "remaining_cents", p.remaining)

	result := ok(p.snapshot())
	result.ChangeCents = change
	return result
}

// VoidBill cancels a draft bill.
func (p *Processor) VoidBill(ctx context.Context, req domain.BillActionRequest) Result {
	return p.transition(ctx, domain.BillStatusVoid, "void_bill", req, p.remote.VoidBill)
}

// RefundBill reverses a posted bill.
func (p *Processor) RefundBill(ctx context.Context, req domain.BillActionRequest) Result {
	return p.transition(ctx, domain.BillStatusRefunded, "refund_bill", req, p.remote.RefundBill)
}

// Refresh reloads the bill from the bill service, for instance after a
// Failed payment whose outcome is unknown.
func (p *Processor) Refresh(ctx context.Context) Result {
	release, err := p.begin(ctx)
	if err != nil {
		return p.refuse(err)
	}
	defer release()

	p.mu.Lock()
	billID := p.billID
	state := p.snapshot()
	p.mu.Unlock()
	if billID == "" {
		return rejected(state, apperr.New(apperr.CodeConflict, "no bill has been created for this session"))
	}

	var bill domain.Bill
	err = p.call(ctx, "get_bill", func(ctx context.Context) error {
		var callErr error
		bill, callErr = p.remote.GetBill(ctx, billID)
		return callErr
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return rejected(p.snapshot(), ErrSessionClosed)
	}
	if err != nil {
		return fromError(p.snapshot(), err)
	}
	p.status = bill.Status
	p.total = bill.RoundedTotalCents
	p.remaining = bill.RemainingCents()
	p.payments = append([]domain.Payment(nil), bill.Payments...)
	return ok(p.snapshot())
}

type actionFunc func(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error)

func (p *Processor) transition(ctx context.Context, target domain.BillStatus, op string, req domain.BillActionRequest, action actionFunc) Result {
	release, err := p.begin(ctx)
	if err != nil {
		return p.refuse(err)
	}
	defer release()

	p.mu.Lock()
	billID := p.billID
	status := p.status
	state := p.snapshot()
	p.mu.Unlock()

	if billID == "" {
		return rejected(state, apperr.New(apperr.CodeConflict, "no bill has been created for this session"))
	}
	if _, err := lifecycle.Transition(status, target); err != nil {
		return rejected(state, err)
	}

	var res domain.BillActionResult
	err = p.call(ctx, op, func(ctx context.Context) error {
		var callErr error
		res, callErr = action(ctx, billID, req)
		return callErr
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("discarding bill transition result for closed session", "bill_id", billID, "target", target, "error", err)
		return rejected(p.snapshot(), ErrSessionClosed)
	}
	if err != nil {
		p.logger.Warn("bill transition failed", "bill_id", billID, "target", target, "error", err)
		return fromError(p.snapshot(), err)
	}
	p.status = res.Status
	p.metrics.IncTransition(string(res.Status))
	p.logger.Info("bill transitioned", "bill_id", billID, "status", res.Status)
	return ok(p.snapshot())
}

// begin takes the session guard and marks the session busy.
func (p *Processor) begin(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrSessionClosed
	}
	p.mu.Unlock()

	release, err := p.guard.Acquire(ctx, p.id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.busy = true
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
		release()
	}, nil
}

func (p *Processor) refuse(err error) Result {
	state := p.State()
	if apperr.CodeOf(err) == apperr.CodeInFlight || apperr.CodeOf(err) == apperr.CodeConflict {
		return rejected(state, err)
	}
	return fromError(state, err)
}

func (p *Processor) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	kind := ""
	if err != nil {
		kind = string(apperr.KindOf(err))
	}
	p.metrics.ObserveRemote(op, time.Since(start), kind)
	return err
}

// buildRequest expands the unbooked lines into bill items. Callers hold mu.
func (p *Processor) buildRequest() (domain.CreateBillRequest, []string, error) {
	lines := p.cart.UnbookedLines()
	if len(lines) == 0 {
		return domain.CreateBillRequest{}, nil, apperr.New(apperr.CodeValidation, "cart has no unbooked lines")
	}

	items := make([]domain.BillItem, 0, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		item := domain.BillItem{
			LineID:         line.ID,
			Kind:           line.Kind,
			RefID:          line.RefID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			DiscountCents:  line.DiscountCents,
			TaxRatePercent: line.TaxRatePercent,
			LineTotalCents: line.TotalCents(),
			StaffID:        line.StaffID,
		}
		if line.MultiStaff {
			if len(line.Contributions) == 0 {
				return domain.CreateBillRequest{}, nil, apperr.Newf(apperr.CodeIncomplete, "line %s has no staff assignments", line.ID)
			}
			contributions, err := p.splitter.Split(line.RefID, item.LineTotalCents, line.Contributions)
			if err != nil {
				return domain.CreateBillRequest{}, nil, err
			}
			item.Contributions = contributions
		}
		items = append(items, item)
		ids = append(ids, line.ID)
	}

	req := domain.CreateBillRequest{
		StoreID:             p.storeID,
		TerminalID:          p.terminalID,
		SessionRef:          p.id,
		IdempotencyKey:      p.id,
		Items:               items,
		GlobalDiscountCents: p.cart.GlobalDiscount(),
	}
	if customer := p.cart.Customer(); customer != (domain.Customer{}) {
		req.Customer = &customer
	}
	return req, ids, nil
}

// snapshot copies the session state. Callers hold mu.
func (p *Processor) snapshot() State {
	totalCents := p.total
	remaining := p.remaining
	if p.billID == "" {
		totalCents = p.cart.Total()
		remaining = totalCents
	}
	var paid int64
	for _, payment := range p.payments {
		paid += payment.AmountCents
	}
	return State{
		SessionID:      p.id,
		BillID:         p.billID,
		Status:         p.status,
		TotalCents:     totalCents,
		PaidCents:      paid,
		RemainingCents: remaining,
		Payments:       append([]domain.Payment{}, p.payments...),
		Closed:         p.closed,
	}
}
