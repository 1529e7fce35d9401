// Package lifecycle is the bill state machine: draft -> posted -> refunded,
// draft -> void. Every other move is rejected.
package lifecycle

import (
	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

var transitions = map[domain.BillStatus][]domain.BillStatus{
	domain.BillStatusDraft:  {domain.BillStatusPosted, domain.BillStatusVoid},
	domain.BillStatusPosted: {domain.BillStatusRefunded},
}

func CanTransition(from, to domain.BillStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the new status.
func Transition(from, to domain.BillStatus) (domain.BillStatus, error) {
	if !from.IsValid() || !to.IsValid() {
		return from, apperr.Newf(apperr.CodeValidation, "unknown bill status %q -> %q", from, to)
	}
	if !CanTransition(from, to) {
		return from, apperr.Newf(apperr.CodeStateConflict, "bill cannot move from %s to %s", from, to)
	}
	return to, nil
}

// AcceptsPayments is true only for draft bills.
func AcceptsPayments(status domain.BillStatus) bool {
	return status == domain.BillStatusDraft
}

// IsTerminal reports whether no caller-driven move remains. Posted still
// allows a refund, so only void and refunded are terminal here.
func IsTerminal(status domain.BillStatus) bool {
	return len(transitions[status]) == 0
}
