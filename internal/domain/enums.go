package domain

import "fmt"

// ItemKind discriminates cart lines and bill items.
type ItemKind string

const (
	ItemKindService ItemKind = "service"
	ItemKindProduct ItemKind = "product"
)

var validItemKinds = []ItemKind{ItemKindService, ItemKindProduct}

func (k ItemKind) String() string { return string(k) }

func (k ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseItemKind(value string) (ItemKind, error) {
	for _, candidate := range validItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}

// SplitType selects how a staff member's share of a service line is computed.
type SplitType string

const (
	SplitPercentage SplitType = "percentage"
	SplitFixed      SplitType = "fixed"
	SplitEqual      SplitType = "equal"
	SplitTimeBased  SplitType = "time_based"
	SplitHybrid     SplitType = "hybrid"
)

var validSplitTypes = []SplitType{
	SplitPercentage,
	SplitFixed,
	SplitEqual,
	SplitTimeBased,
	SplitHybrid,
}

// String implements fmt.Stringer.
func (s SplitType) String() string { return string(s) }

// IsValid reports whether the value is a known SplitType.
func (s SplitType) IsValid() bool {
	for _, candidate := range validSplitTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSplitType converts raw input into a SplitType.
func ParseSplitType(value string) (SplitType, error) {
	for _, candidate := range validSplitTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid split type %q", value)
}

// PaymentMethod is the tender used for a single payment.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentUPI   PaymentMethod = "upi"
	PaymentOther PaymentMethod = "other"
)

var validPaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentUPI, PaymentOther}

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsCash reports whether the tender may exceed the remaining balance and
// produce change.
func (m PaymentMethod) IsCash() bool { return m == PaymentCash }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// BillStatus tracks the lifecycle of a bill.
type BillStatus string

const (
	BillStatusDraft    BillStatus = "draft"
	BillStatusPosted   BillStatus = "posted"
	BillStatusVoid     BillStatus = "void"
	BillStatusRefunded BillStatus = "refunded"
)

var validBillStatuses = []BillStatus{
	BillStatusDraft,
	BillStatusPosted,
	BillStatusVoid,
	BillStatusRefunded,
}

func (s BillStatus) String() string { return string(s) }

func (s BillStatus) IsValid() bool {
	for _, candidate := range validBillStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseBillStatus(value string) (BillStatus, error) {
	for _, candidate := range validBillStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bill status %q", value)
}
