package breaker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func TestBreaker_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			b := New(store, testLogger(), WithClock(clock.Now))

			assert.True(t, b.IsAvailable(ctx, "openai"))

			b.RecordFailure(ctx, "openai")
			b.RecordFailure(ctx, "openai")
			assert.True(t, b.IsAvailable(ctx, "openai"))

			b.RecordFailure(ctx, "openai")
			assert.False(t, b.IsAvailable(ctx, "openai"))
			assert.True(t, b.IsAvailable(ctx, "anthropic"), "keys are independent")

			clock.Advance(59 * time.Second)
			assert.False(t, b.IsAvailable(ctx, "openai"))

			clock.Advance(time.Second)
			assert.True(t, b.IsAvailable(ctx, "openai"), "first probe after cooldown")
			assert.False(t, b.IsAvailable(ctx, "openai"), "only one probe while half-open")

			b.RecordFailure(ctx, "openai")
			assert.False(t, b.IsAvailable(ctx, "openai"), "failed probe reopens")

			clock.Advance(DefaultCooldown)
			assert.True(t, b.IsAvailable(ctx, "openai"))

			b.RecordSuccess(ctx, "openai")
			assert.True(t, b.IsAvailable(ctx, "openai"))
			assert.True(t, b.IsAvailable(ctx, "openai"))

			b.RecordFailure(ctx, "openai")
			assert.True(t, b.IsAvailable(ctx, "openai"), "success reset the failure count")
		})
	}
}

func TestBreaker_SuccessResetsRun(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(), testLogger())

	b.RecordFailure(ctx, "k")
	b.RecordFailure(ctx, "k")
	b.RecordSuccess(ctx, "k")
	b.RecordFailure(ctx, "k")
	b.RecordFailure(ctx, "k")

	assert.True(t, b.IsAvailable(ctx, "k"))
}

func TestBreaker_StalledProbeIsReplaced(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	b := New(NewMemoryStore(), testLogger(), WithClock(clock.Now), WithThreshold(1))

	b.RecordFailure(ctx, "k")
	clock.Advance(DefaultCooldown)
	require.True(t, b.IsAvailable(ctx, "k"))
	require.False(t, b.IsAvailable(ctx, "k"))

	clock.Advance(DefaultCooldown)
	assert.True(t, b.IsAvailable(ctx, "k"))
}

func TestBreaker_Do(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(), testLogger(), WithThreshold(1))
	boom := errors.New("boom")

	err := b.Do(ctx, "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = b.Do(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

type failingStore struct{}

func (failingStore) Update(context.Context, string, func(*Record) bool) (Record, error) {
	return Record{}, errors.New("store down")
}

func TestBreaker_FailsOpen(t *testing.T) {
	ctx := context.Background()
	b := New(failingStore{}, testLogger())

	b.RecordFailure(ctx, "k")
	assert.True(t, b.IsAvailable(ctx, "k"))
}

func TestRedisStore_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := New(NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), testLogger(), WithThreshold(2))
	second := New(NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), testLogger(), WithThreshold(2))

	first.RecordFailure(ctx, "provider")
	second.RecordFailure(ctx, "provider")

	assert.False(t, first.IsAvailable(ctx, "provider"))
	assert.False(t, second.IsAvailable(ctx, "provider"))
	assert.True(t, mr.Exists(redisKeyPrefix+"provider"))
}
