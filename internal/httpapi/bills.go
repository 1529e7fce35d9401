package httpapi

import (
	"context"
	"net/http"
	"strings"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/service"
)

func (a *API) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBillRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	ref, err := a.service.CreateBill(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if ref.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ref)
}

func (a *API) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := a.service.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handleListBills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"), "from")
	if err != nil {
		a.writeError(w, err)
		return
	}
	to, err := parseTimeParam(query.Get("to"), "to")
	if err != nil {
		a.writeError(w, err)
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	bills, err := a.service.ListBills(r.Context(), query.Get("store_id"), from, to, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": bills})
}

func (a *API) handleBillPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	res, err := a.service.ApplyPayment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleBillVoid(w http.ResponseWriter, r *http.Request) {
	a.billAction(w, r, "void", a.service.VoidBill)
}

func (a *API) handleBillRefund(w http.ResponseWriter, r *http.Request) {
	a.billAction(w, r, "refund", a.service.RefundBill)
}

type billActionFunc func(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error)

func (a *API) billAction(w http.ResponseWriter, r *http.Request, action string, fn billActionFunc) {
	req, ok := a.decodeBillAction(w, r, action)
	if !ok {
		return
	}
	res, err := fn(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeBillAction reads a void or refund request and checks the manager
// PIN, taken from X-Manager-PIN or the body. Attempts are throttled per
// client and user.
func (a *API) decodeBillAction(w http.ResponseWriter, r *http.Request, action string) (domain.BillActionRequest, bool) {
	var req domain.BillActionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		a.writeError(w, err)
		return req, false
	}
	if pin := strings.TrimSpace(r.Header.Get("X-Manager-PIN")); pin != "" {
		req.ManagerPIN = pin
	}

	actor, _ := service.ActorFromContext(r.Context())
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r) + ":" + actor.Username) {
		a.writeError(w, apperr.New(apperr.CodeRateLimit, "too many manager pin attempts"))
		return req, false
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		a.writeError(w, apperr.New(apperr.CodeForbidden, "invalid manager pin"))
		return req, false
	}
	req.ManagerPIN = ""
	return req, true
}
