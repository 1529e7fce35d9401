package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const billColumns = `
	id, store_id, terminal_id, shift_id, session_ref, idempotency_key,
	customer_id, customer_name, customer_phone, status,
	subtotal_cents, discount_cents, tax_cents, rounding_adjustment_cents, rounded_total_cents,
	created_by, created_at, posted_at, void_reason, closed_at`

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.IdempotencyKey == "" || bill.ID == "" || len(bill.Items) == 0 {
		return nil, store.ErrInvalidBill
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	if bill.Status == "" {
		bill.Status = domain.BillStatusDraft
	}

	if existing, err := s.FindBillByIdempotency(ctx, bill.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerID, customerName, customerPhone string
	if bill.Customer != nil {
		customerID, customerName, customerPhone = bill.Customer.ID, bill.Customer.Name, bill.Customer.Phone
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO bills (`+billColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`), bill.ID, bill.StoreID, bill.TerminalID, nullIfEmpty(bill.ShiftID), bill.SessionRef, bill.IdempotencyKey,
		nullIfEmpty(customerID), nullIfEmpty(customerName), nullIfEmpty(customerPhone), bill.Status,
		bill.SubtotalCents, bill.DiscountCents, bill.TaxCents, bill.RoundingAdjustmentCents, bill.RoundedTotalCents,
		bill.CreatedBy, bill.CreatedAt.UTC(), nullTime(bill.PostedAt), nullIfEmpty(bill.VoidReason), nullTime(bill.ClosedAt))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			_ = tx.Rollback()
			existing, lookupErr := s.FindBillByIdempotency(ctx, bill.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
			return nil, store.ErrInvalidBill
		}
		return nil, err
	}

	for i, item := range bill.Items {
		contributions, err := encodeJSON(item.Contributions)
		if err != nil {
			return nil, fmt.Errorf("encode contributions: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO bill_items (
				bill_id, position, line_id, kind, ref_id, name, unit_price_cents, qty,
				discount_cents, tax_rate_percent, line_total_cents, tax_cents, staff_id, contributions
			)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`), bill.ID, i, item.LineID, item.Kind, item.RefID, item.Name, item.UnitPriceCents, item.Qty,
			item.DiscountCents, item.TaxRatePercent, item.LineTotalCents, item.TaxCents, item.StaffID, contributions)
		if err != nil {
			return nil, err
		}
	}

	for _, payment := range bill.Payments {
		if err := s.insertPayment(ctx, tx, bill.ID, payment); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindBillByID(ctx, bill.ID)
}

func (s *Store) FindBillByID(ctx context.Context, id string) (*domain.Bill, error) {
	return s.findBill(ctx, "id", id)
}

func (s *Store) FindBillByIdempotency(ctx context.Context, key string) (*domain.Bill, error) {
	return s.findBill(ctx, "idempotency_key", key)
}

func (s *Store) findBill(ctx context.Context, column string, value string) (*domain.Bill, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	row := s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`
		SELECT %s
		FROM bills
		WHERE %s = ?
	`, billColumns, column)), value)
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := s.loadItems(ctx, bill); err != nil {
		return nil, err
	}
	if err := s.loadPayments(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var (
		bill                              domain.Bill
		shiftID, customerID, customerName sql.NullString
		customerPhone, voidReason         sql.NullString
		postedAt, closedAt                sql.NullTime
	)
	err := row.Scan(
		&bill.ID,
		&bill.StoreID,
		&bill.TerminalID,
		&shiftID,
		&bill.SessionRef,
		&bill.IdempotencyKey,
		&customerID,
		&customerName,
		&customerPhone,
		&bill.Status,
		&bill.SubtotalCents,
		&bill.DiscountCents,
		&bill.TaxCents,
		&bill.RoundingAdjustmentCents,
		&bill.RoundedTotalCents,
		&bill.CreatedBy,
		&bill.CreatedAt,
		&postedAt,
		&voidReason,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	bill.ShiftID = shiftID.String
	bill.VoidReason = voidReason.String
	if customerID.Valid || customerName.Valid || customerPhone.Valid {
		bill.Customer = &domain.Customer{ID: customerID.String, Name: customerName.String, Phone: customerPhone.String}
	}
	bill.CreatedAt = bill.CreatedAt.UTC()
	bill.PostedAt = timePtr(postedAt)
	bill.ClosedAt = timePtr(closedAt)
	return &bill, nil
}

func (s *Store) loadItems(ctx context.Context, bill *domain.Bill) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT line_id, kind, ref_id, name, unit_price_cents, qty, discount_cents,
			tax_rate_percent, line_total_cents, tax_cents, staff_id, contributions
		FROM bill_items
		WHERE bill_id = ?
		ORDER BY position ASC
	`), bill.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0, 8)
	for rows.Next() {
		var (
			item          domain.BillItem
			contributions string
		)
		if err := rows.Scan(&item.LineID, &item.Kind, &item.RefID, &item.Name, &item.UnitPriceCents, &item.Qty,
			&item.DiscountCents, &item.TaxRatePercent, &item.LineTotalCents, &item.TaxCents, &item.StaffID, &contributions); err != nil {
			return err
		}
		if err := decodeJSON(contributions, &item.Contributions); err != nil {
			return fmt.Errorf("decode contributions of bill %s: %w", bill.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	bill.Items = items
	return nil
}

func (s *Store) loadPayments(ctx context.Context, bill *domain.Bill) error {
	payments, err := queryPayments(ctx, s.db, s.rebind(`
		SELECT id, bill_id, method, amount_cents, reference, created_at
		FROM bill_payments
		WHERE bill_id = ?
		ORDER BY created_at ASC, id ASC
	`), bill.ID)
	if err != nil {
		return err
	}
	bill.Payments = payments
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPayments(ctx context.Context, q queryer, query string, args ...any) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var (
			payment   domain.Payment
			reference sql.NullString
		)
		if err := rows.Scan(&payment.ID, &payment.BillID, &payment.Method, &payment.AmountCents, &reference, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.Reference = reference.String
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) insertPayment(ctx context.Context, tx *sql.Tx, billID string, payment domain.Payment) error {
	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO bill_payments (id, bill_id, method, amount_cents, reference, created_at)
		VALUES (?,?,?,?,?,?)
	`), payment.ID, billID, payment.Method, payment.AmountCents, nullIfEmpty(payment.Reference), payment.CreatedAt.UTC())
	return err
}

func (s *Store) AppendPayment(ctx context.Context, billID string, payment domain.Payment) (*domain.Bill, error) {
	if payment.AmountCents <= 0 || !payment.Method.IsValid() {
		return nil, store.ErrInvalidBill
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status domain.BillStatus
		total  int64
	)
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT status, rounded_total_cents
		FROM bills
		WHERE id = ?`+s.lock()), billID).Scan(&status, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.BillStatusDraft {
		return nil, store.ErrConflict
	}

	var paid int64
	if err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM bill_payments
		WHERE bill_id = ?
	`), billID).Scan(&paid); err != nil {
		return nil, err
	}
	remaining := total - paid
	if payment.AmountCents > remaining {
		return nil, store.ErrInvalidBill
	}

	if err := s.insertPayment(ctx, tx, billID, payment); err != nil {
		return nil, err
	}
	if remaining-payment.AmountCents == 0 {
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE bills
			SET status = ?, posted_at = ?
			WHERE id = ? AND status = ?
		`), domain.BillStatusPosted, payment.CreatedAt.UTC(), billID, domain.BillStatusDraft)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindBillByID(ctx, billID)
}

func (s *Store) TransitionBill(ctx context.Context, id string, from domain.BillStatus, to domain.BillStatus, reason string, at time.Time) (*domain.Bill, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `UPDATE bills SET status = ?, void_reason = ?, closed_at = ? WHERE id = ? AND status = ?`
	args := []any{to, nullIfEmpty(reason), at.UTC(), id, from}
	if to == domain.BillStatusPosted {
		query = `UPDATE bills SET status = ?, posted_at = ? WHERE id = ? AND status = ?`
		args = []any{to, at.UTC(), id, from}
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.FindBillByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}
	return s.FindBillByID(ctx, id)
}

func (s *Store) ListBills(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Bill, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+billColumns+`
		FROM bills
		WHERE store_id = ?
			AND created_at >= ?
			AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), storeID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	bills := make([]*domain.Bill, 0, limit)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]domain.Bill, 0, len(bills))
	for _, bill := range bills {
		if err := s.loadItems(ctx, bill); err != nil {
			return nil, err
		}
		if err := s.loadPayments(ctx, bill); err != nil {
			return nil, err
		}
		out = append(out, *bill)
	}
	return out, nil
}

func (s *Store) SumCashByShift(ctx context.Context, shiftID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(SUM(p.amount_cents), 0)
		FROM bill_payments p
		JOIN bills b ON b.id = p.bill_id
		WHERE b.shift_id = ? AND b.status = ? AND p.method = ?
	`), shiftID, domain.BillStatusPosted, domain.PaymentCash).Scan(&total)
	return total, err
}
