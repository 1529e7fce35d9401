// Package service is the server side of billing: it prices and stores bills,
// records payments, moves bills through their lifecycle and keeps the staff
// roster and cash shifts of each store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/money"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Options struct {
	DefaultStoreID string
	// Unit is the rounding unit of bill totals in minor units.
	Unit int64
	// Denominations is the accepted cash set for shift counts. Empty accepts
	// any positive value.
	Denominations  []int64
	RosterCache    cache.RosterCache
	RosterCacheTTL time.Duration
	Logger         *slog.Logger
}

type Service struct {
	repo           store.Repository
	rosters        cache.RosterCache
	rosterTTL      time.Duration
	defaultStoreID string
	unit           int64
	denominations  []int64
	logger         *slog.Logger
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.Unit <= 0 {
		opts.Unit = money.DefaultUnit
	}
	if opts.RosterCache == nil {
		opts.RosterCache = cache.NoopRosterCache{}
	}
	if opts.RosterCacheTTL <= 0 {
		opts.RosterCacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:           repo,
		rosters:        opts.RosterCache,
		rosterTTL:      opts.RosterCacheTTL,
		defaultStoreID: opts.DefaultStoreID,
		unit:           opts.Unit,
		denominations:  append([]int64(nil), opts.Denominations...),
		logger:         opts.Logger.With("component", "service"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) DefaultStoreID() string { return s.defaultStoreID }

func (s *Service) Unit() int64 { return s.unit }

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	from, to, err := s.resolveRange(from, to)
	if err != nil {
		return nil, err
	}
	logs, err := s.repo.ListAuditLogs(ctx, storeID, from, to, clampLimit(limit))
	if err != nil {
		return nil, mapStoreError(err, "audit log")
	}
	return logs, nil
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor := actorOrSystem(ctx)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

// mapStoreError turns repository sentinels into typed errors. Errors that are
// already typed pass through untouched.
func mapStoreError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, entity+" not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.CodeStateConflict, err, entity+" was changed concurrently or is in the wrong state")
	case errors.Is(err, store.ErrInvalidBill), errors.Is(err, store.ErrInvalidInput):
		return apperr.Wrap(apperr.CodeValidation, err, entity+" was rejected by storage")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeDependency, err, "storage call interrupted")
	default:
		return apperr.Wrap(apperr.CodeInternal, err, "storage operation failed")
	}
}

// resolveRange defaults an open range to the last 30 days up to now.
func (s *Service) resolveRange(from time.Time, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperr.New(apperr.CodeValidation, "to must not be before from")
	}
	return from, to, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func ValidateStoreID(storeID string) error {
	if strings.TrimSpace(storeID) == "" {
		return apperr.New(apperr.CodeValidation, "store_id is required")
	}
	return nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
