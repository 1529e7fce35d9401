package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/domain"
)

func TestRosterRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Redis{store: mock}

	_, found, err := client.GetRoster(ctx, "main-store")
	require.NoError(t, err)
	assert.False(t, found)

	roster := &domain.Roster{
		StoreID:   "main-store",
		Staff:     []domain.Staff{{ID: "stf-ana", Name: "Ana", Role: "stylist", Active: true}},
		Templates: []domain.RoleTemplate{{ServiceID: "svc-balayage", RequiredRoles: []string{"stylist", "colorist"}}},
	}
	require.NoError(t, client.SetRoster(ctx, roster, time.Minute))
	assert.Equal(t, time.Minute, mock.ttl["salonpos:roster:main-store"])

	got, found, err := client.GetRoster(ctx, "main-store")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, roster, got)

	require.NoError(t, client.InvalidateRoster(ctx, "main-store"))
	_, found, err = client.GetRoster(ctx, "main-store")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetRosterRejectsCorruptPayload(t *testing.T) {
	mock := newMockCmdable()
	mock.data[RosterKey("main-store")] = "{not json"
	client := &Redis{store: mock}

	_, _, err := client.GetRoster(context.Background(), "main-store")
	assert.Error(t, err)
}

func TestRedisGuard(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	guard := NewRedisGuard(&Redis{store: mock}, 5*time.Second)

	release, err := guard.Acquire(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, mock.ttl["salonpos:guard:sess-1"])

	_, err = guard.Acquire(ctx, "sess-1")
	assert.Equal(t, apperr.CodeInFlight, apperr.CodeOf(err))

	other, err := guard.Acquire(ctx, "sess-2")
	require.NoError(t, err)
	other()

	release()
	_, held := mock.data["salonpos:guard:sess-1"]
	assert.False(t, held)

	again, err := guard.Acquire(ctx, "sess-1")
	require.NoError(t, err)
	again()
}

func TestRedisGuardReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	guard := NewRedisGuard(&Redis{store: mock}, time.Second)

	release, err := guard.Acquire(ctx, "sess-1")
	require.NoError(t, err)

	// The lock expired and another process took it.
	mock.data["salonpos:guard:sess-1"] = "lock-other"
	release()
	assert.Equal(t, "lock-other", mock.data["salonpos:guard:sess-1"])
	assert.Equal(t, 1, mock.evals)
	assert.Zero(t, mock.dels, "release must not issue a plain DEL")
}

func TestRedisGuardReleaseIsSingleCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	guard := NewRedisGuard(&Redis{store: mock}, time.Second)

	release, err := guard.Acquire(ctx, "sess-1")
	require.NoError(t, err)
	release()

	_, held := mock.data["salonpos:guard:sess-1"]
	assert.False(t, held)
	assert.Equal(t, 1, mock.evals)
	assert.Zero(t, mock.dels)
	assert.Contains(t, releaseScript, `redis.call("get", KEYS[1]) == ARGV[1]`)
}

func TestRedisGuardMapsBackendErrors(t *testing.T) {
	mock := newMockCmdable()
	mock.err = fmt.Errorf("connection refused")
	guard := NewRedisGuard(&Redis{store: mock}, time.Second)

	_, err := guard.Acquire(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, apperr.CodeDependency, apperr.CodeOf(err))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "salonpos:roster:main-store", RosterKey("main-store"))
	assert.Equal(t, "salonpos:guard:sess-1", GuardKey("sess-1"))
	assert.Equal(t, "salonpos:roster", RosterKey(" "))
}

type mockCmdable struct {
	data  map[string]string
	ttl   map[string]time.Duration
	err   error
	evals int
	dels  int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttl:  make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = stringify(value)
	m.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = stringify(value)
	m.ttl[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.dels++
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands only the guard release script.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	if m.err != nil {
		return redis.NewCmdResult(nil, m.err)
	}
	if script != releaseScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if current, ok := m.data[keys[0]]; ok && current == stringify(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func stringify(value any) string {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(value)
}
