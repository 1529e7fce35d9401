package cache

import (
	"context"
	"log/slog"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/xid"
)

// releaseScript deletes the lock only while it still carries the holder's
// token, in one round trip.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisGuard admits one settlement call per checkout session across
// processes. The lock carries a TTL so a crashed holder cannot wedge the
// session.
type RedisGuard struct {
	client *Redis
	ttl    time.Duration
}

func NewRedisGuard(client *Redis, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := GuardKey(sessionID)
	token := xid.New("lock")
	acquired, err := g.client.store.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "session guard unavailable")
	}
	if !acquired {
		return nil, apperr.New(apperr.CodeInFlight, "another settlement call is in progress for this session")
	}

	return func() {
		// The caller's context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.client.store.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			slog.Warn("release session guard failed", "session", sessionID, "error", err)
		}
	}, nil
}
