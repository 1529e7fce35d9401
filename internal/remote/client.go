// Package remote is the terminal side of the bill service HTTP API. Client
// satisfies settlement.Remote so a checkout session can settle against a
// server over the network exactly as it does in-process.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 64 << 10
)

type Option func(*Client)

// WithHTTPClient replaces the default client with a 10s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithReadRetries sets how many times reads are retried after a transient
// failure. Writes are never retried here; the session retries them with the
// same idempotency key.
func WithReadRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.readRetries = n
		c.retryBase = base
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type Client struct {
	baseURL     string
	http        *http.Client
	token       string
	readRetries uint64
	retryBase   time.Duration
	logger      *slog.Logger
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid bill service url %q", baseURL)
	}
	c := &Client{
		baseURL:     strings.TrimRight(parsed.String(), "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		readRetries: 2,
		retryBase:   100 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c, nil
}

func (c *Client) CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.BillRef, error) {
	var ref domain.BillRef
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/bills", headers, req, &ref)
	return ref, err
}

func (c *Client) ApplyPayment(ctx context.Context, billID string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	var res domain.PaymentResult
	err := c.do(ctx, http.MethodPost, billPath(billID, "payment"), nil, req, &res)
	return res, err
}

func (c *Client) GetBill(ctx context.Context, billID string) (domain.Bill, error) {
	var bill domain.Bill
	err := c.read(ctx, billPath(billID, ""), &bill)
	return bill, err
}

func (c *Client) VoidBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error) {
	var res domain.BillActionResult
	err := c.do(ctx, http.MethodPost, billPath(billID, "void"), pinHeader(req), req, &res)
	return res, err
}

func (c *Client) RefundBill(ctx context.Context, billID string, req domain.BillActionRequest) (domain.BillActionResult, error) {
	var res domain.BillActionResult
	err := c.do(ctx, http.MethodPost, billPath(billID, "refund"), pinHeader(req), req, &res)
	return res, err
}

// Roster fetches the staff list and role templates a terminal needs to split
// multi-staff lines locally.
func (c *Client) Roster(ctx context.Context, storeID string) (*domain.Roster, error) {
	query := ""
	if storeID != "" {
		query = "?store_id=" + url.QueryEscape(storeID)
	}
	var staff struct {
		Items []domain.Staff `json:"items"`
	}
	if err := c.read(ctx, "/api/v1/staff"+query, &staff); err != nil {
		return nil, err
	}
	var templates struct {
		Items []domain.RoleTemplate `json:"items"`
	}
	if err := c.read(ctx, "/api/v1/role-templates"+query, &templates); err != nil {
		return nil, err
	}
	return &domain.Roster{StoreID: storeID, Staff: staff.Items, Templates: templates.Items}, nil
}

// read issues a GET and retries it with exponential backoff while the
// failure is transient.
func (c *Client) read(ctx context.Context, path string, out any) error {
	backoff := retry.WithMaxRetries(c.readRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, nil, out)
		if err != nil && apperr.IsTransient(err) {
			c.logger.Debug("retrying bill service read", "path", path, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method string, path string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.CodeValidation, err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeDependency, err, "bill service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.CodeDependency, err, "decode bill service response")
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
		Details any         `json:"details,omitempty"`
	} `json:"error"`
}

// decodeError maps a non-2xx response onto the error taxonomy. The status
// decides the kind; the server's code is kept when it agrees with it.
func decodeError(resp *http.Response) error {
	fallback := codeForStatus(resp.StatusCode)

	var envelope errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	code := fallback
	if envelope.Error.Code != "" && apperr.MetadataFor(envelope.Error.Code).Kind == apperr.MetadataFor(fallback).Kind {
		code = envelope.Error.Code
	}
	out := apperr.Wrap(code, errors.New(resp.Status), message)
	if envelope.Error.Details != nil {
		out = out.WithDetails(envelope.Error.Details)
	}
	return out
}

func codeForStatus(status int) apperr.Code {
	switch {
	case status == http.StatusBadRequest:
		return apperr.CodeValidation
	case status == http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case status == http.StatusForbidden:
		return apperr.CodeForbidden
	case status == http.StatusNotFound:
		return apperr.CodeNotFound
	case status == http.StatusConflict:
		return apperr.CodeConflict
	case status == http.StatusUnprocessableEntity:
		return apperr.CodeStateConflict
	case status == http.StatusTooManyRequests:
		return apperr.CodeRateLimit
	case status >= 500:
		return apperr.CodeDependency
	default:
		return apperr.CodeValidation
	}
}

func billPath(billID string, action string) string {
	path := "/api/v1/bills/" + url.PathEscape(billID)
	if action != "" {
		path += "/" + action
	}
	return path
}

func pinHeader(req domain.BillActionRequest) map[string]string {
	if req.ManagerPIN == "" {
		return nil
	}
	return map[string]string{"X-Manager-PIN": req.ManagerPIN}
}
