package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, call{method: http.MethodGet, path: "/healthz"})

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header().Get("Referrer-Policy"))
	assert.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"admin","password":"wrong-pass"}`))
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)

		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
	}
}

func TestAttemptLimiterRefills(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("k"))
	assert.True(t, limiter.Allow("k"))
	assert.False(t, limiter.Allow("k"))
	assert.True(t, limiter.Allow("other"))

	now = now.Add(31 * time.Second)
	assert.True(t, limiter.Allow("k"))
	assert.False(t, limiter.Allow("k"))

	now = now.Add(10 * time.Minute)
	limiter.Allow("fresh")
	assert.NotContains(t, limiter.entries, "other")
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, strings.Repeat("a", maxBodyBytes+1024))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"admin","password":"x","role":"admin"}`))
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestManagerPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	for i := 0; i < 9; i++ {
		res := do(t, api, call{
			method: http.MethodPost,
			path:   "/api/v1/bills/bill-missing/void",
			token:  token,
			body:   domain.BillActionRequest{Reason: "test", ManagerPIN: "000000"},
		})
		if i < 8 {
			require.Equal(t, http.StatusForbidden, res.Code, "attempt %d", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
	}
}

func TestValidPINReachesBillService(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := do(t, api, call{
		method:  http.MethodPost,
		path:    "/api/v1/bills/bill-missing/refund",
		token:   token,
		headers: map[string]string{"X-Manager-PIN": testManagerPIN},
	})
	assert.Equal(t, http.StatusNotFound, res.Code, res.Body.String())
}

func TestCSRFRequiredForBrowserRequests(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	body := map[string]string{"terminal_id": "terminal-1"}

	res := do(t, api, call{method: http.MethodPost, path: "/api/v1/sessions", token: token, body: body,
		headers: map[string]string{"Origin": "https://pos.example"}})
	assert.Equal(t, http.StatusForbidden, res.Code)

	csrf := fetchCSRFToken(t, api)
	res = do(t, api, call{method: http.MethodPost, path: "/api/v1/sessions", token: token, body: body,
		headers: map[string]string{"Origin": "https://pos.example", "X-CSRF-Token": csrf}})
	assert.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = do(t, api, call{method: http.MethodPost, path: "/api/v1/sessions", token: token, body: body})
	assert.Equal(t, http.StatusCreated, res.Code, "terminal clients send no Origin")
}

func TestInternalErrorsHideDetails(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.writeError(res, fmt.Errorf("pq: connection refused to 10.0.0.5"))

	require.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "10.0.0.5")
}

func TestParsePositiveLimitCaps(t *testing.T) {
	assert.Equal(t, 200, parsePositiveLimit("9999", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("invalid", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("-3", 50, 200))
}

func TestParseTimeParam(t *testing.T) {
	day, err := parseTimeParam("2025-03-01", "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), day)

	_, err = parseTimeParam("yesterday", "from")
	assert.Error(t, err)
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	res := do(t, api, call{method: http.MethodGet, path: "/api/v1/auth/csrf-token"})
	require.Equal(t, http.StatusOK, res.Code)
	payload := decodeBody[map[string]string](t, res)
	require.NotEmpty(t, strings.TrimSpace(payload["csrf_token"]))
	return payload["csrf_token"]
}
