package httpapi

import (
	"net/http"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

var errTooManyLogins = apperr.New(apperr.CodeRateLimit, "too many login attempts, try again later")

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, errTooManyLogins)
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.Staff(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": staff})
}

func (a *API) handleUpsertStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.Staff
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	req.ID = r.PathValue("id")

	saved, err := a.service.UpsertStaff(r.Context(), r.URL.Query().Get("store_id"), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleListRoleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.service.RoleTemplates(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": templates})
}

func (a *API) handleUpsertRoleTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.RoleTemplate
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	req.ServiceID = r.PathValue("serviceID")

	saved, err := a.service.UpsertRoleTemplate(r.Context(), r.URL.Query().Get("store_id"), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.GetActiveShift(r.Context(), query.Get("store_id"), query.Get("terminal_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
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

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), from, to, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}
