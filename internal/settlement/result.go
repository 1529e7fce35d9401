package settlement

import (
	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

type Outcome string

const (
	// OutcomeOk means the operation took effect.
	OutcomeOk Outcome = "ok"
	// OutcomeRejected means the operation was refused for a validation or
	// conflict reason; retrying unchanged will not help.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means a transient failure; the operation may be retried.
	OutcomeFailed Outcome = "failed"
)

// State is a snapshot of a checkout session.
type State struct {
	SessionID      string            `json:"session_id"`
	BillID         string            `json:"bill_id,omitempty"`
	Status         domain.BillStatus `json:"status,omitempty"`
	TotalCents     int64             `json:"total_cents"`
	PaidCents      int64             `json:"paid_cents"`
	RemainingCents int64             `json:"remaining_cents"`
	Payments       []domain.Payment  `json:"payments"`
	Closed         bool              `json:"closed"`
}

// Result is returned by every processor operation.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	State       State   `json:"state"`
	ChangeCents int64   `json:"change_cents,omitempty"`
	Err         error   `json:"-"`
}

func (r Result) OK() bool { return r.Outcome == OutcomeOk }

// Kind reports the error kind of a rejected or failed result.
func (r Result) Kind() apperr.Kind {
	if r.Err == nil {
		return ""
	}
	return apperr.KindOf(r.Err)
}

func ok(state State) Result {
	return Result{Outcome: OutcomeOk, State: state}
}

// fromError picks Rejected or Failed by the error kind.
func fromError(state State, err error) Result {
	if apperr.IsTransient(err) {
		return Result{Outcome: OutcomeFailed, State: state, Err: err}
	}
	return Result{Outcome: OutcomeRejected, State: state, Err: err}
}

func rejected(state State, err error) Result {
	return Result{Outcome: OutcomeRejected, State: state, Err: err}
}
