package settlement

import (
	"context"
	"sync"

	"salonpos/backend/internal/apperr"
)

// ErrInFlight is returned when another call already holds the session guard.
var ErrInFlight = apperr.New(apperr.CodeInFlight, "another settlement call is in progress for this session")

// Guard admits one settlement call per key at a time. Acquire never blocks
// waiting for the holder; it fails with ErrInFlight instead.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalGuard is an in-process Guard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
