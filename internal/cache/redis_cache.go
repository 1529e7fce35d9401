package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salonpos/backend/internal/domain"
)

const (
	keyNamespace = "salonpos"
	rosterPrefix = "roster"
	guardPrefix  = "guard"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// Redis is the shared Redis client behind the roster cache and the
// cross-process session guard.
type Redis struct {
	store cmdable
	raw   *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{store: client, raw: client}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Redis) GetRoster(ctx context.Context, storeID string) (*domain.Roster, bool, error) {
	val, err := c.store.Get(ctx, RosterKey(storeID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var roster domain.Roster
	if err := json.Unmarshal([]byte(val), &roster); err != nil {
		return nil, false, fmt.Errorf("decode cached roster: %w", err)
	}
	return &roster, true, nil
}

func (c *Redis) SetRoster(ctx context.Context, roster *domain.Roster, ttl time.Duration) error {
	if roster == nil {
		return nil
	}
	payload, err := json.Marshal(roster)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, RosterKey(roster.StoreID), payload, ttl).Err()
}

func (c *Redis) InvalidateRoster(ctx context.Context, storeID string) error {
	return c.store.Del(ctx, RosterKey(storeID)).Err()
}

// RosterKey returns the namespaced roster key of a store.
func RosterKey(storeID string) string {
	return buildKey(rosterPrefix, storeID)
}

// GuardKey returns the namespaced in-flight guard key of a checkout session.
func GuardKey(sessionID string) string {
	return buildKey(guardPrefix, sessionID)
}

func buildKey(parts ...string) string {
	filtered := make([]string, 0, len(parts)+1)
	filtered = append(filtered, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ":")
}
