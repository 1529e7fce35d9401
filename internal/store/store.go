package store

import (
	"context"
	"errors"
	"time"

	"salonpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidBill marks a bill or payment the store refuses to persist.
	ErrInvalidBill = errors.New("invalid bill")
	// ErrInvalidInput marks any other record missing its required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks a write that lost against the current row state.
	ErrConflict = errors.New("conflict")
)

type Repository interface {
	// CreateBill persists a draft bill. When the idempotency key is already
	// taken the existing bill is returned instead; callers tell the two apart
	// by comparing IDs.
	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	FindBillByID(ctx context.Context, id string) (*domain.Bill, error)
	FindBillByIdempotency(ctx context.Context, key string) (*domain.Bill, error)
	// AppendPayment records a payment on a draft bill and posts the bill when
	// nothing remains. A payment above the remaining balance is ErrInvalidBill;
	// a bill that is no longer draft is ErrConflict.
	AppendPayment(ctx context.Context, billID string, payment domain.Payment) (*domain.Bill, error)
	// TransitionBill moves a bill from one status to another. The move fails
	// with ErrConflict when the bill is not in from.
	TransitionBill(ctx context.Context, id string, from domain.BillStatus, to domain.BillStatus, reason string, at time.Time) (*domain.Bill, error)
	ListBills(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Bill, error)
	// SumCashByShift totals cash payments of posted bills booked in a shift.
	SumCashByShift(ctx context.Context, shiftID string) (int64, error)

	ListStaff(ctx context.Context, storeID string) ([]domain.Staff, error)
	UpsertStaff(ctx context.Context, storeID string, staff domain.Staff) error
	ListRoleTemplates(ctx context.Context, storeID string) ([]domain.RoleTemplate, error)
	UpsertRoleTemplate(ctx context.Context, storeID string, template domain.RoleTemplate) error

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, closing domain.Shift) (*domain.Shift, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
