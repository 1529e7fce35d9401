package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const shiftColumns = `
	id, store_id, terminal_id, cashier_name, opening_float_cents, denominations,
	counted_cash_cents, expected_cash_cents, variance_cents, status, opened_at, closed_at`

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" || strings.TrimSpace(shift.CashierName) == "" {
		return nil, store.ErrInvalidInput
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.Denominations = nil
	shift.CountedCashCents, shift.ExpectedCashCents, shift.VarianceCents = 0, 0, 0

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`), shift.ID, shift.StoreID, shift.TerminalID, shift.CashierName, shift.OpeningFloatCents, "{}",
		0, 0, 0, shift.Status, shift.OpenedAt.UTC(), nil)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = ? AND terminal_id = ? AND status = ?
		ORDER BY opened_at DESC
		LIMIT 1
	`), storeID, terminalID, domain.ShiftStatusOpen)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, closing domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(closing.StoreID) == "" || strings.TrimSpace(closing.TerminalID) == "" {
		return nil, store.ErrInvalidInput
	}
	closedAt := time.Now().UTC()
	if closing.ClosedAt != nil {
		closedAt = closing.ClosedAt.UTC()
	}
	counts, err := encodeJSON(closing.Denominations)
	if err != nil {
		return nil, fmt.Errorf("encode denominations: %w", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var shiftID string
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT id
		FROM shifts
		WHERE store_id = ? AND terminal_id = ? AND status = ?`+s.lock()),
		closing.StoreID, closing.TerminalID, domain.ShiftStatusOpen).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE shifts
		SET status = ?, denominations = ?, counted_cash_cents = ?, expected_cash_cents = ?,
			variance_cents = ?, closed_at = ?
		WHERE id = ?
	`), domain.ShiftStatusClosed, counts, closing.CountedCashCents, closing.ExpectedCashCents,
		closing.VarianceCents, closedAt, shiftID)
	if err != nil {
		return nil, err
	}

	shift, err := scanShift(tx.QueryRowContext(ctx, s.rebind(`
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = ?
	`), shiftID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return shift, nil
}

func scanShift(row rowScanner) (*domain.Shift, error) {
	var (
		shift    domain.Shift
		counts   string
		closedAt sql.NullTime
	)
	err := row.Scan(
		&shift.ID,
		&shift.StoreID,
		&shift.TerminalID,
		&shift.CashierName,
		&shift.OpeningFloatCents,
		&counts,
		&shift.CountedCashCents,
		&shift.ExpectedCashCents,
		&shift.VarianceCents,
		&shift.Status,
		&shift.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(counts, &shift.Denominations); err != nil {
		return nil, fmt.Errorf("decode denominations of shift %s: %w", shift.ID, err)
	}
	if len(shift.Denominations) == 0 {
		shift.Denominations = nil
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	shift.ClosedAt = timePtr(closedAt)
	return &shift, nil
}
