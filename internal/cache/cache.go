package cache

import (
	"context"
	"time"

	"salonpos/backend/internal/domain"
)

// RosterCache holds per-store staff rosters between reads.
type RosterCache interface {
	GetRoster(ctx context.Context, storeID string) (*domain.Roster, bool, error)
	SetRoster(ctx context.Context, roster *domain.Roster, ttl time.Duration) error
	InvalidateRoster(ctx context.Context, storeID string) error
}

type NoopRosterCache struct{}

func (NoopRosterCache) GetRoster(_ context.Context, _ string) (*domain.Roster, bool, error) {
	return nil, false, nil
}

func (NoopRosterCache) SetRoster(_ context.Context, _ *domain.Roster, _ time.Duration) error {
	return nil
}

func (NoopRosterCache) InvalidateRoster(_ context.Context, _ string) error {
	return nil
}
