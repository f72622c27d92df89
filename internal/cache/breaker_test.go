package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyCache struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *flakyCache) Get(context.Context, string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return nil, ErrCacheMiss
}

func (f *flakyCache) Set(context.Context, string, *domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *flakyCache) Delete(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *flakyCache) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBreakerCache_MissesDoNotTrip(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &flakyCache{}
	b := NewBreakerCache(inner, BreakerSettings{MaxFailures: 2}, logger)

	for i := 0; i < 10; i++ {
		_, err := b.Get(context.Background(), "user:1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerCache_TripsAndFailsFast(t *testing.T) {
	logger, hook := test.NewNullLogger()
	inner := &flakyCache{err: errors.New("connection refused")}
	b := NewBreakerCache(inner, BreakerSettings{MaxFailures: 3, OpenTimeout: time.Minute}, logger)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Set(context.Background(), "user:1", &domain.Cart{}))
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Get(context.Background(), "user:1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.callCount())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBreakerCache_RecoversAfterTimeout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &flakyCache{err: errors.New("connection refused")}
	b := NewBreakerCache(inner, BreakerSettings{MaxFailures: 1, OpenTimeout: 50 * time.Millisecond}, logger)

	assert.Error(t, b.Delete(context.Background(), "user:1"))
	require.Equal(t, gobreaker.StateOpen, b.State())

	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()

	require.Eventually(t, func() bool {
		return b.State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	assert.NoError(t, b.Delete(context.Background(), "user:1"))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
