package domain

import "time"

type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Staff struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// RoleTemplate lists the roles a multi-staff service needs covered.
type RoleTemplate struct {
	ServiceID     string   `json:"service_id"`
	Name          string   `json:"name"`
	RequiredRoles []string `json:"required_roles"`
}

// ContributionDraft is a staff assignment before amounts are computed.
type ContributionDraft struct {
	StaffID      string    `json:"staff_id" validate:"required"`
	Role         string    `json:"role"`
	Sequence     int       `json:"sequence" validate:"min=1"`
	SplitType    SplitType `json:"split_type" validate:"required"`
	Percent      int       `json:"percent,omitempty" validate:"min=0,max=100"`
	FixedCents   int64     `json:"fixed_cents,omitempty" validate:"min=0"`
	Minutes      int       `json:"minutes,omitempty" validate:"min=0"`
	SkillPercent int       `json:"skill_percent,omitempty" validate:"min=0,max=100"`
}

// Contribution is a computed staff share. Base, time and skill are only set
// for hybrid splits and sum to AmountCents.
type Contribution struct {
	ContributionDraft
	AmountCents int64 `json:"amount_cents"`
	BaseCents   int64 `json:"base_cents,omitempty"`
	TimeCents   int64 `json:"time_cents,omitempty"`
	SkillCents  int64 `json:"skill_cents,omitempty"`
}

// BillItem is a cart line materialised into a bill. DiscountCents is per unit.
type BillItem struct {
	LineID         string         `json:"line_id,omitempty"`
	Kind           ItemKind       `json:"kind" validate:"required"`
	RefID          string         `json:"ref_id" validate:"required"`
	Name           string         `json:"name,omitempty"`
	UnitPriceCents int64          `json:"unit_price_cents" validate:"min=0"`
	Qty            int            `json:"qty" validate:"min=1"`
	DiscountCents  int64          `json:"discount_cents" validate:"min=0"`
	TaxRatePercent int            `json:"tax_rate_percent" validate:"min=0,max=100"`
	LineTotalCents int64          `json:"line_total_cents"`
	TaxCents       int64          `json:"tax_cents"`
	StaffID        string         `json:"staff_id,omitempty"`
	Contributions  []Contribution `json:"contributions,omitempty" validate:"dive"`
}

type Payment struct {
	ID          string        `json:"id"`
	BillID      string        `json:"bill_id"`
	Method      PaymentMethod `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	Reference   string        `json:"reference,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Bill amounts satisfy RoundedTotal = Subtotal - Discount + Tax + RoundingAdjustment.
// Prices are tax inclusive, so Subtotal is the gross line value net of the
// extracted tax.
type Bill struct {
	ID                      string     `json:"id"`
	StoreID                 string     `json:"store_id"`
	TerminalID              string     `json:"terminal_id,omitempty"`
	ShiftID                 string     `json:"shift_id,omitempty"`
	SessionRef              string     `json:"session_ref"`
	IdempotencyKey          string     `json:"idempotency_key"`
	Customer                *Customer  `json:"customer,omitempty"`
	Status                  BillStatus `json:"status"`
	Items                   []BillItem `json:"items"`
	SubtotalCents           int64      `json:"subtotal_cents"`
	DiscountCents           int64      `json:"discount_cents"`
	TaxCents                int64      `json:"tax_cents"`
	RoundingAdjustmentCents int64      `json:"rounding_adjustment_cents"`
	RoundedTotalCents       int64      `json:"rounded_total_cents"`
	Payments                []Payment  `json:"payments"`
	CreatedBy               string     `json:"created_by"`
	CreatedAt               time.Time  `json:"created_at"`
	PostedAt                *time.Time `json:"posted_at,omitempty"`
	VoidReason              string     `json:"void_reason,omitempty"`
	ClosedAt                *time.Time `json:"closed_at,omitempty"`
}

func (b Bill) PaidCents() int64 {
	var paid int64
	for _, p := range b.Payments {
		paid += p.AmountCents
	}
	return paid
}

func (b Bill) RemainingCents() int64 {
	remaining := b.RoundedTotalCents - b.PaidCents()
	if remaining < 0 {
		return 0
	}
	return remaining
}

type CreateBillRequest struct {
	StoreID             string     `json:"store_id,omitempty"`
	TerminalID          string     `json:"terminal_id,omitempty"`
	SessionRef          string     `json:"session_ref" validate:"required"`
	IdempotencyKey      string     `json:"idempotency_key,omitempty"`
	Customer            *Customer  `json:"customer,omitempty"`
	Items               []BillItem `json:"items" validate:"required,min=1,dive"`
	GlobalDiscountCents int64      `json:"discount_cents" validate:"min=0"`
}

// BillRef is the short answer to bill creation.
type BillRef struct {
	ID                string     `json:"id"`
	Status            BillStatus `json:"status"`
	RoundedTotalCents int64      `json:"rounded_total_cents"`
	RemainingCents    int64      `json:"remaining_cents"`
	Duplicate         bool       `json:"duplicate"`
}

type PaymentRequest struct {
	Method      PaymentMethod `json:"method" validate:"required"`
	AmountCents int64         `json:"amount_cents" validate:"gt=0"`
	Reference   string        `json:"reference,omitempty" validate:"max=120"`
}

type PaymentResult struct {
	BillID         string     `json:"bill_id"`
	Status         BillStatus `json:"status"`
	RemainingCents int64      `json:"remaining_cents"`
	Payment        Payment    `json:"payment"`
}

type BillActionRequest struct {
	Reason     string `json:"reason,omitempty" validate:"max=240"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type BillActionResult struct {
	BillID string     `json:"bill_id"`
	Status BillStatus `json:"status"`
	At     time.Time  `json:"at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type Shift struct {
	ID                string        `json:"id"`
	StoreID           string        `json:"store_id"`
	TerminalID        string        `json:"terminal_id"`
	CashierName       string        `json:"cashier_name"`
	OpeningFloatCents int64         `json:"opening_float_cents"`
	Denominations     map[int64]int `json:"denominations,omitempty"`
	CountedCashCents  int64         `json:"counted_cash_cents,omitempty"`
	ExpectedCashCents int64         `json:"expected_cash_cents,omitempty"`
	VarianceCents     int64         `json:"variance_cents,omitempty"`
	Status            string        `json:"status"`
	OpenedAt          time.Time     `json:"opened_at"`
	ClosedAt          *time.Time    `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	StoreID           string `json:"store_id"`
	TerminalID        string `json:"terminal_id" validate:"required"`
	CashierName       string `json:"cashier_name" validate:"required"`
	OpeningFloatCents int64  `json:"opening_float_cents" validate:"min=0"`
}

// ShiftCloseRequest carries the physical drawer count keyed by denomination
// in minor units.
type ShiftCloseRequest struct {
	StoreID       string        `json:"store_id"`
	TerminalID    string        `json:"terminal_id" validate:"required"`
	Denominations map[int64]int `json:"denominations" validate:"required"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

// Roster is the staff list and role templates of one store, as served to
// terminals and cached between requests.
type Roster struct {
	StoreID   string         `json:"store_id"`
	Staff     []Staff        `json:"staff"`
	Templates []RoleTemplate `json:"templates"`
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
