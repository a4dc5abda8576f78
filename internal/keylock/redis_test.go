package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// memRedis serves the commands the locker issues from a map. Everything
// else panics through the nil embedded client.
type memRedis struct {
	redis.UniversalClient

	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	evalErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// EvalSha runs the compare-and-delete release script.
func (m *memRedis) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evalErr != nil {
		return redis.NewCmdResult(nil, m.evalErr)
	}
	if m.data[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func (m *memRedis) Close() error { return nil }

func (m *memRedis) expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *memRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestRedis_TryLockAndReleaseInMemory(t *testing.T) {
	mem := newMemRedis()
	r := NewRedis(mem, WithPrefix("test:"), WithTTL(time.Second))
	ctx := context.Background()

	release, err := r.TryLock(ctx, "tg:1/intro")
	require.NoError(t, err)
	assert.True(t, mem.has("test:tg:1/intro"))
	assert.Equal(t, time.Second, mem.ttls["test:tg:1/intro"])

	_, err = r.TryLock(ctx, "tg:1/intro")
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.False(t, mem.has("test:tg:1/intro"))

	again, err := r.Lock(ctx, "tg:1/intro")
	require.NoError(t, err)
	again()
}

func TestRedis_LockWaitsForRelease(t *testing.T) {
	r := NewRedis(newMemRedis())
	r.poll = time.Millisecond
	ctx := context.Background()

	release, err := r.TryLock(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		next, err := r.Lock(ctx, "k")
		if err == nil {
			next()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("lock not acquired after release")
	}
}

func TestRedis_LockHonoursContext(t *testing.T) {
	r := NewRedis(newMemRedis())
	r.poll = time.Millisecond

	_, err := r.TryLock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ReleaseProblemsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mem := newMemRedis()
	r := NewRedis(mem, WithRedisLogger(zap.New(core)))
	ctx := context.Background()

	// Expired and taken over by another holder: the stale release must
	// not delete the new holder's key.
	release, err := r.TryLock(ctx, "k")
	require.NoError(t, err)
	mem.expire(r.prefix + "k")
	other, err := r.TryLock(ctx, "k")
	require.NoError(t, err)
	release()
	assert.True(t, mem.has(r.prefix+"k"))
	require.Equal(t, 1, logs.FilterMessage("lock expired before release").Len())
	other()

	mem.evalErr = errors.New("connection reset")
	release, err = r.TryLock(ctx, "k")
	require.NoError(t, err)
	release()
	entries := logs.FilterMessage("lock release failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}
