package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/denomination"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	if err := Validate(req); err != nil {
		return domain.ShiftResponse{}, err
	}
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)

	shift := domain.Shift{
		ID:                xid.New("shift"),
		StoreID:           req.StoreID,
		TerminalID:        strings.TrimSpace(req.TerminalID),
		CashierName:       strings.TrimSpace(req.CashierName),
		OpeningFloatCents: req.OpeningFloatCents,
		Status:            domain.ShiftStatusOpen,
		OpenedAt:          s.now(),
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.ShiftResponse{}, apperr.Wrap(apperr.CodeConflict, err, "shift already open on this terminal")
		}
		return domain.ShiftResponse{}, mapStoreError(err, "shift")
	}

	s.logAudit(ctx, req.StoreID, "shift_open", "shift", saved.ID, fmt.Sprintf("cashier=%s float=%d", saved.CashierName, saved.OpeningFloatCents))

	return domain.ShiftResponse{Shift: *saved}, nil
}

// CloseShift reconciles the drawer count against the opening float plus the
// cash taken on posted bills of the shift and closes it.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	if err := Validate(req); err != nil {
		return domain.ShiftResponse{}, err
	}
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)

	counts := denomination.Counts(req.Denominations)
	if err := counts.Validate(s.denominations); err != nil {
		return domain.ShiftResponse{}, err
	}

	active, err := s.repo.GetActiveShift(ctx, req.StoreID, req.TerminalID)
	if err != nil {
		return domain.ShiftResponse{}, mapStoreError(err, "open shift")
	}
	cash, err := s.repo.SumCashByShift(ctx, active.ID)
	if err != nil {
		return domain.ShiftResponse{}, mapStoreError(err, "shift")
	}

	expected := active.OpeningFloatCents + cash
	closedAt := s.now()
	closed, err := s.repo.CloseActiveShift(ctx, domain.Shift{
		StoreID:           req.StoreID,
		TerminalID:        req.TerminalID,
		Denominations:     req.Denominations,
		CountedCashCents:  counts.Total(),
		ExpectedCashCents: expected,
		VarianceCents:     counts.Variance(expected),
		ClosedAt:          &closedAt,
	})
	if err != nil {
		return domain.ShiftResponse{}, mapStoreError(err, "open shift")
	}

	s.logAudit(ctx, req.StoreID, "shift_close", "shift", closed.ID,
		fmt.Sprintf("counted=%d expected=%d variance=%d", closed.CountedCashCents, closed.ExpectedCashCents, closed.VarianceCents))

	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, storeID string, terminalID string) (domain.ShiftResponse, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	if strings.TrimSpace(terminalID) == "" {
		return domain.ShiftResponse{}, apperr.New(apperr.CodeValidation, "terminal_id is required")
	}

	shift, err := s.repo.GetActiveShift(ctx, storeID, strings.TrimSpace(terminalID))
	if err != nil {
		return domain.ShiftResponse{}, mapStoreError(err, "open shift")
	}

	return domain.ShiftResponse{Shift: *shift}, nil
}
