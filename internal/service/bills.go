package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/contribution"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/lifecycle"
	"salonpos/backend/internal/money"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

// CreateBill prices the submitted items, re-splits multi-staff lines against
// the store roster and persists a draft bill. Submitting the same idempotency
// key again returns the stored bill with Duplicate set. A bill whose rounded
// total is zero is posted immediately.
func (s *Service) CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.BillRef, error) {
	if err := Validate(req); err != nil {
		return domain.BillRef{}, err
	}
	storeID := defaultString(req.StoreID, s.defaultStoreID)
	key := defaultString(req.IdempotencyKey, req.SessionRef)

	existing, err := s.repo.FindBillByIdempotency(ctx, key)
	switch {
	case err == nil:
		return billRef(existing, true), nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.BillRef{}, mapStoreError(err, "bill")
	}

	splitter, err := s.Splitter(ctx, storeID)
	if err != nil {
		return domain.BillRef{}, err
	}
	items, lines, err := s.priceItems(splitter, req.Items)
	if err != nil {
		return domain.BillRef{}, err
	}

	var net int64
	for _, line := range lines {
		net += line.Total()
	}
	if req.GlobalDiscountCents > net {
		return domain.BillRef{}, apperr.Newf(apperr.CodeValidation, "discount %d exceeds bill value %d", req.GlobalDiscountCents, net)
	}
	totals := money.Summarize(lines, req.GlobalDiscountCents, s.unit)

	shiftID, err := s.activeShiftID(ctx, storeID, req.TerminalID)
	if err != nil {
		return domain.BillRef{}, err
	}

	now := s.now()
	bill := domain.Bill{
		ID:                      xid.New("bill"),
		StoreID:                 storeID,
		TerminalID:              strings.TrimSpace(req.TerminalID),
		ShiftID:                 shiftID,
		SessionRef:              req.SessionRef,
		IdempotencyKey:          key,
		Customer:                req.Customer,
		Status:                  domain.BillStatusDraft,
		Items:                   items,
		SubtotalCents:           totals.SubtotalCents,
		DiscountCents:           totals.DiscountCents,
		TaxCents:                totals.TaxCents,
		RoundingAdjustmentCents: totals.RoundingAdjustmentCents,
		RoundedTotalCents:       totals.RoundedTotalCents,
		Payments:                []domain.Payment{},
		CreatedBy:               actorOrSystem(ctx).Username,
		CreatedAt:               now,
	}
	if bill.RoundedTotalCents == 0 {
		bill.Status = domain.BillStatusPosted
		bill.PostedAt = &now
	}

	saved, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		return domain.BillRef{}, mapStoreError(err, "bill")
	}
	duplicate := saved.ID != bill.ID
	if !duplicate {
		s.logAudit(ctx, storeID, "bill_create", "bill", saved.ID,
			fmt.Sprintf("total=%d items=%d status=%s", saved.RoundedTotalCents, len(saved.Items), saved.Status))
	}
	return billRef(saved, duplicate), nil
}

// priceItems recomputes line totals and tax from the submitted prices and
// replaces submitted contribution amounts with a server-side split.
func (s *Service) priceItems(splitter *contribution.Splitter, submitted []domain.BillItem) ([]domain.BillItem, []money.Line, error) {
	items := make([]domain.BillItem, 0, len(submitted))
	lines := make([]money.Line, 0, len(submitted))
	for i, item := range submitted {
		if !item.Kind.IsValid() {
			return nil, nil, apperr.Newf(apperr.CodeValidation, "item %d has unknown kind %q", i, item.Kind)
		}
		if item.DiscountCents > item.UnitPriceCents {
			return nil, nil, apperr.Newf(apperr.CodeValidation, "item %d discount exceeds unit price", i)
		}
		line := money.Line{
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			DiscountCents:  item.DiscountCents,
			TaxRatePercent: item.TaxRatePercent,
		}
		item.LineTotalCents = line.Total()
		item.TaxCents = line.Tax()

		if len(item.Contributions) > 0 {
			if item.Kind != domain.ItemKindService {
				return nil, nil, apperr.Newf(apperr.CodeValidation, "item %d: only services carry staff contributions", i)
			}
			contributions, err := resplit(splitter, item)
			if err != nil {
				return nil, nil, err
			}
			item.Contributions = contributions
			item.StaffID = ""
		} else if item.StaffID != "" {
			if err := splitter.CheckStaff(item.StaffID); err != nil {
				return nil, nil, err
			}
		}
		items = append(items, item)
		lines = append(lines, line)
	}
	return items, lines, nil
}

// resplit rejects submitted amounts that miss the line total by more than the
// tolerance, then recomputes the split from the drafts.
func resplit(splitter *contribution.Splitter, item domain.BillItem) ([]domain.Contribution, error) {
	var submitted int64
	drafts := make([]domain.ContributionDraft, 0, len(item.Contributions))
	for _, c := range item.Contributions {
		submitted += c.AmountCents
		drafts = append(drafts, c.ContributionDraft)
	}
	if gap := submitted - item.LineTotalCents; gap > contribution.Tolerance || gap < -contribution.Tolerance {
		return nil, apperr.Newf(apperr.CodeValidation, "contributions for %s sum to %d, line total is %d", item.RefID, submitted, item.LineTotalCents).
			WithDetails(map[string]any{"sum_cents": submitted, "line_total_cents": item.LineTotalCents})
	}
	return splitter.Split(item.RefID, item.LineTotalCents, drafts)
}

func (s *Service) activeShiftID(ctx context.Context, storeID string, terminalID string) (string, error) {
	if strings.TrimSpace(terminalID) == "" {
		return "", nil
	}
	shift, err := s.repo.GetActiveShift(ctx, storeID, strings.TrimSpace(terminalID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", mapStoreError(err, "shift")
	}
	return shift.ID, nil
}

// ApplyPayment records one payment against a draft bill. The bill posts when
// nothing remains. Amounts above the remaining balance are refused whatever
// the tender; change is worked out by the terminal.
func (s *Service) ApplyPayment(ctx context.Context, billID string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if err := Validate(req); err != nil {
		return domain.PaymentResult{}, err
	}
	if !req.Method.IsValid() {
		return domain.PaymentResult{}, apperr.Newf(apperr.CodeValidation, "unsupported payment method %q", req.Method)
	}
	bill, err := s.findBill(ctx, billID)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	if !lifecycle.AcceptsPayments(bill.Status) {
		return domain.PaymentResult{}, apperr.Newf(apperr.CodeStateConflict, "bill %s is %s and no longer accepts payments", bill.ID, bill.Status)
	}
	if remaining := bill.RemainingCents(); req.AmountCents > remaining {
		return domain.PaymentResult{}, overpayment(req.AmountCents, remaining)
	}

	payment := domain.Payment{
		ID:          xid.New("pay"),
		BillID:      bill.ID,
		Method:      req.Method,
		AmountCents: req.AmountCents,
		Reference:   strings.TrimSpace(req.Reference),
		CreatedAt:   s.now(),
	}
	saved, err := s.repo.AppendPayment(ctx, bill.ID, payment)
	if err != nil {
		if errors.Is(err, store.ErrInvalidBill) {
			// Another payment landed between the read and the write.
			latest, findErr := s.findBill(ctx, bill.ID)
			if findErr == nil {
				return domain.PaymentResult{}, overpayment(req.AmountCents, latest.RemainingCents())
			}
		}
		return domain.PaymentResult{}, mapStoreError(err, "bill")
	}

	s.logAudit(ctx, saved.StoreID, "bill_payment", "bill", saved.ID,
		fmt.Sprintf("method=%s amount=%d remaining=%d status=%s", payment.Method, payment.AmountCents, saved.RemainingCents(), saved.Status))

	return domain.PaymentResult{
		BillID:         saved.ID,
		Status:         saved.Status,
		RemainingCents: saved.RemainingCents(),
		Payment:        payment,
	}, nil
}

func overpayment(amount, remaining int64) error {
	return apperr.Newf(apperr.CodeValidation, "payment %d exceeds remaining balance %d", amount, remaining).
		WithDetails(map[string]any{"amount_cents": amount, "remaining_cents": remaining})
}

func (s *Service) GetBill(ctx context.Context, billID string) (domain.Bill, error) {
	bill, err := s.findBill(ctx, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func (s *Service) findBill(ctx context.Context, billID string) (*domain.Bill, error) {
	if strings.TrimSpace(billID) == "" {
		return nil, apperr.New(apperr.CodeValidation, "bill id is required")
	}
	bill, err := s.repo.FindBillByID(ctx, strings.TrimSpace(billID))
	if err != nil {
		return nil, mapStoreError(err, "bill")
	}
	return bill, nil
}

// VoidBill cancels a draft bill.
func (s *Service) VoidBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error) {
	return s.transition(ctx, billID, domain.BillStatusVoid, "bill_void", req)
}

// RefundBill reverses a posted bill.
func (s *Service) RefundBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error) {
	return s.transition(ctx, billID, domain.BillStatusRefunded, "bill_refund", req)
}

func (s *Service) transition(ctx context.Context, billID string, to domain.BillStatus, action string, req domain.BillActionRequest) (domain.BillActionResult, error) {
	if err := Validate(req); err != nil {
		return domain.BillActionResult{}, err
	}
	bill, err := s.findBill(ctx, billID)
	if err != nil {
		return domain.BillActionResult{}, err
	}
	if _, err := lifecycle.Transition(bill.Status, to); err != nil {
		return domain.BillActionResult{}, err
	}

	reason := defaultString(req.Reason, "unspecified")
	at := s.now()
	saved, err := s.repo.TransitionBill(ctx, bill.ID, bill.Status, to, reason, at)
	if err != nil {
		return domain.BillActionResult{}, mapStoreError(err, "bill")
	}

	s.logAudit(ctx, saved.StoreID, action, "bill", saved.ID, reason)

	return domain.BillActionResult{BillID: saved.ID, Status: saved.Status, At: at}, nil
}

func (s *Service) ListBills(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Bill, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	from, to, err := s.resolveRange(from, to)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, storeID, from, to, clampLimit(limit))
	if err != nil {
		return nil, mapStoreError(err, "bill")
	}
	return bills, nil
}

func billRef(bill *domain.Bill, duplicate bool) domain.BillRef {
	return domain.BillRef{
		ID:                bill.ID,
		Status:            bill.Status,
		RoundedTotalCents: bill.RoundedTotalCents,
		RemainingCents:    bill.RemainingCents(),
		Duplicate:         duplicate,
	}
}
