package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/cart"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/money"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/session"
	"salonpos/backend/internal/settlement"
)

type openSessionRequest struct {
	StoreID    string `json:"store_id"`
	TerminalID string `json:"terminal_id" validate:"required"`
}

type updateLineRequest struct {
	Qty           *int    `json:"qty,omitempty"`
	DiscountCents *int64  `json:"discount_cents,omitempty" validate:"omitempty,min=0"`
	StaffID       *string `json:"staff_id,omitempty"`
}

type contributionsRequest struct {
	Contributions []domain.ContributionDraft `json:"contributions" validate:"required,min=1,dive"`
}

type discountRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"min=0"`
}

// sessionView is the cart and bill state of a checkout session.
type sessionView struct {
	Info           session.Info     `json:"info"`
	State          settlement.State `json:"state"`
	Customer       domain.Customer  `json:"customer"`
	Lines          []cart.Line      `json:"lines"`
	GlobalDiscount int64            `json:"global_discount_cents"`
	Totals         money.Totals     `json:"totals"`
}

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	processor, info, err := a.sessions.Open(r.Context(), req.StoreID, req.TerminalID, actor.Username)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView{
		Info:  info,
		State: processor.State(),
		Lines: []cart.Line{},
	})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": a.sessions.List(r.URL.Query().Get("store_id")),
	})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.sessionView(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	state, err := a.sessions.Close(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var candidate cart.Candidate
	if err := decodeJSON(r, &candidate, false); err != nil {
		a.writeError(w, err)
		return
	}
	a.editCart(w, r, func(c *cart.Cart) error {
		_, err := c.AddLine(candidate)
		return err
	})
}

func (a *API) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	lineID := r.PathValue("lineID")
	a.editCart(w, r, func(c *cart.Cart) error {
		if req.StaffID != nil {
			if err := c.AssignStaff(lineID, strings.TrimSpace(*req.StaffID)); err != nil {
				return err
			}
		}
		if req.DiscountCents != nil {
			if err := c.SetLineDiscount(lineID, *req.DiscountCents); err != nil {
				return err
			}
		}
		if req.Qty != nil {
			return c.SetQuantity(lineID, *req.Qty)
		}
		return nil
	})
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("lineID")
	a.editCart(w, r, func(c *cart.Cart) error {
		return c.RemoveLine(lineID)
	})
}

func (a *API) handleSetContributions(w http.ResponseWriter, r *http.Request) {
	var req contributionsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	lineID := r.PathValue("lineID")
	a.editCart(w, r, func(c *cart.Cart) error {
		return c.SetContributions(lineID, req.Contributions)
	})
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.Customer
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	a.editCart(w, r, func(c *cart.Cart) error {
		c.SetCustomer(strings.TrimSpace(req.ID), strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone))
		return nil
	})
}

func (a *API) handleSetDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	a.editCart(w, r, func(c *cart.Cart) error {
		return c.SetGlobalDiscount(req.AmountCents)
	})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	processor, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeResult(w, processor.CreateBillOnce(r.Context()))
}

func (a *API) handleSessionPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, err)
		return
	}
	processor, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeResult(w, processor.ApplyPayment(r.Context(), req.Method, req.AmountCents, req.Reference))
}

func (a *API) handleSessionVoid(w http.ResponseWriter, r *http.Request) {
	processor, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	req, ok := a.decodeBillAction(w, r, "void")
	if !ok {
		return
	}
	a.writeResult(w, processor.VoidBill(r.Context(), req))
}

func (a *API) handleSessionRefund(w http.ResponseWriter, r *http.Request) {
	processor, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	req, ok := a.decodeBillAction(w, r, "refund")
	if !ok {
		return
	}
	a.writeResult(w, processor.RefundBill(r.Context(), req))
}

func (a *API) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	processor, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeResult(w, processor.Refresh(r.Context()))
}

// editCart applies fn to the session cart and answers with the updated view.
func (a *API) editCart(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart) error) {
	id := r.PathValue("id")
	processor, err := a.sessions.Get(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := processor.WithCart(fn); err != nil {
		a.writeError(w, err)
		return
	}
	view, err := a.sessionView(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) sessionView(id string) (sessionView, error) {
	processor, err := a.sessions.Get(id)
	if err != nil {
		return sessionView{}, err
	}
	info, err := a.sessions.Info(id)
	if err != nil {
		return sessionView{}, err
	}
	view := sessionView{Info: info}
	err = processor.WithCart(func(c *cart.Cart) error {
		view.Customer = c.Customer()
		view.Lines = c.Lines()
		view.GlobalDiscount = c.GlobalDiscount()
		view.Totals = c.Totals()
		return nil
	})
	if err != nil && !errors.Is(err, settlement.ErrInFlight) {
		return sessionView{}, err
	}
	view.State = processor.State()
	if view.Lines == nil {
		view.Lines = []cart.Line{}
	}
	return view, nil
}

// writeResult answers 200 for Ok and the error status otherwise. The session
// state is included either way so the client can resync.
func (a *API) writeResult(w http.ResponseWriter, res settlement.Result) {
	if res.OK() {
		writeJSON(w, http.StatusOK, res)
		return
	}
	err := res.Err
	if err == nil {
		err = apperr.New(apperr.CodeInternal, "settlement failed without an error")
	}
	writeJSON(w, a.errorStatus(err), map[string]any{
		"error":   a.errorPayload(err),
		"outcome": res.Outcome,
		"state":   res.State,
	})
}
