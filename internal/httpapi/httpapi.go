// Package httpapi serves the bill service, checkout sessions, roster and
// shifts over HTTP.
package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/session"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Service  *service.Service
	Sessions *session.Registry
	Auth     *AuthManager
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer      prometheus.Gatherer
	Metrics       *metrics.HTTP
	AllowedOrigin string
	Logger        *slog.Logger
}

type API struct {
	service       *service.Service
	sessions      *session.Registry
	auth          *AuthManager
	gatherer      prometheus.Gatherer
	metrics       *metrics.HTTP
	allowedOrigin string
	logger        *slog.Logger
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(deps Deps) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &API{
		service:       deps.Service,
		sessions:      deps.Sessions,
		auth:          deps.Auth,
		gatherer:      deps.Gatherer,
		metrics:       deps.Metrics,
		allowedOrigin: deps.AllowedOrigin,
		logger:        deps.Logger.With("component", "http"),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	staff := []string{RoleCashier, RoleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	if a.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/v1/bills", a.requireAuth(a.handleCreateBill, staff...))
	mux.HandleFunc("GET /api/v1/bills", a.requireAuth(a.handleListBills, RoleAdmin))
	mux.HandleFunc("GET /api/v1/bills/{id}", a.requireAuth(a.handleGetBill, staff...))
	mux.HandleFunc("POST /api/v1/bills/{id}/payment", a.requireAuth(a.handleBillPayment, staff...))
	mux.HandleFunc("POST /api/v1/bills/{id}/void", a.requireAuth(a.handleBillVoid, staff...))
	mux.HandleFunc("POST /api/v1/bills/{id}/refund", a.requireAuth(a.handleBillRefund, staff...))

	mux.HandleFunc("GET /api/v1/staff", a.requireAuth(a.handleListStaff, staff...))
	mux.HandleFunc("PUT /api/v1/staff/{id}", a.requireAuth(a.handleUpsertStaff, RoleAdmin))
	mux.HandleFunc("GET /api/v1/role-templates", a.requireAuth(a.handleListRoleTemplates, staff...))
	mux.HandleFunc("PUT /api/v1/role-templates/{serviceID}", a.requireAuth(a.handleUpsertRoleTemplate, RoleAdmin))

	mux.HandleFunc("POST /api/v1/sessions", a.requireAuth(a.handleOpenSession, staff...))
	mux.HandleFunc("GET /api/v1/sessions", a.requireAuth(a.handleListSessions, staff...))
	mux.HandleFunc("GET /api/v1/sessions/{id}", a.requireAuth(a.handleGetSession, staff...))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", a.requireAuth(a.handleCloseSession, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/lines", a.requireAuth(a.handleAddLine, staff...))
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/lines/{lineID}", a.requireAuth(a.handleUpdateLine, staff...))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/lines/{lineID}", a.requireAuth(a.handleRemoveLine, staff...))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/lines/{lineID}/contributions", a.requireAuth(a.handleSetContributions, staff...))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/customer", a.requireAuth(a.handleSetCustomer, staff...))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/discount", a.requireAuth(a.handleSetDiscount, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/checkout", a.requireAuth(a.handleCheckout, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/payments", a.requireAuth(a.handleSessionPayment, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/void", a.requireAuth(a.handleSessionVoid, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/refund", a.requireAuth(a.handleSessionRefund, staff...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/refresh", a.requireAuth(a.handleSessionRefresh, staff...))

	mux.HandleFunc("POST /api/v1/shifts/open", a.requireAuth(a.handleShiftOpen, staff...))
	mux.HandleFunc("POST /api/v1/shifts/close", a.requireAuth(a.handleShiftClose, staff...))
	mux.HandleFunc("GET /api/v1/shifts/active", a.requireAuth(a.handleShiftActive, staff...))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, RoleAdmin))
	mux.HandleFunc("GET /api/v1/users/cashiers", a.requireAuth(a.handleListCashiers, RoleAdmin))
	mux.HandleFunc("POST /api/v1/users/cashiers", a.requireAuth(a.handleCreateCashier, RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, apperr.New(apperr.CodeForbidden, "forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// csrfTokenForHour computes an HMAC-SHA256 token for an hour bucket given as
// Unix seconds truncated to the hour.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the CSRF token on state-changing requests sent by
// browsers. Terminal clients that send no Origin header are exempt.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	if r.Header.Get("Origin") == "" {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		a.writeError(w, apperr.New(apperr.CodeForbidden, "missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, Idempotency-Key, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)
		a.metrics.Observe(r.Pattern, r.Method, rec.status, elapsed)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

// writeError renders err as {"error": {...}} with the status of its code.
// Server-side failures get the generic public message.
func (a *API) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, a.errorStatus(err), map[string]any{"error": a.errorPayload(err)})
}

func (a *API) errorStatus(err error) int {
	return apperr.MetadataFor(apperr.CodeOf(err)).HTTPStatus
}

func (a *API) errorPayload(err error) errorBody {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "")
	}
	meta := apperr.MetadataFor(typed.Code())
	body := errorBody{Code: typed.Code(), Message: typed.Message(), Details: typed.Details()}
	if meta.HTTPStatus >= http.StatusInternalServerError {
		a.logger.Error("request failed", "code", typed.Code(), "error", err)
		body.Message = meta.PublicMessage
		body.Details = nil
	}
	if body.Message == "" {
		body.Message = meta.PublicMessage
	}
	return body
}

// decodeJSON reads one JSON document into dest and runs struct validation.
// An empty body is allowed when allowEmpty is set.
func decodeJSON(r *http.Request, dest any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.CodeValidation, err, "request body too large")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	return service.Validate(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseTimeParam(raw string, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse(time.DateOnly, raw); err == nil {
		return day.UTC(), nil
	}
	return time.Time{}, apperr.Newf(apperr.CodeValidation, "%s must be RFC 3339 or YYYY-MM-DD", name)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
