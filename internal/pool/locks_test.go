package pool

import (
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_ExclusivePerKey(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "reserve:USDC")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			holders++
			maxSeen = max(maxSeen, holders)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, km.locks, "released keys must be dropped")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "user:a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "user:b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	km := newKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Empty(t, km.locks)

	unlock, err = km.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestIdempotencyLRU_EvictsOldest(t *testing.T) {
	lru := newIdempotencyLRU(3)
	for i := 0; i < 3; i++ {
		assert.False(t, lru.Add(fmt.Sprintf("k%d", i)))
	}

	// Touch k0 so k1 becomes the oldest.
	assert.True(t, lru.Contains("k0"))
	assert.True(t, lru.Add("k3"))

	assert.Equal(t, 3, lru.Size())
	assert.False(t, lru.Contains("k1"))
	assert.True(t, lru.Contains("k0"))
	assert.True(t, lru.Contains("k3"))
}

func TestIdempotencyLRU_ReAddDoesNotGrow(t *testing.T) {
	lru := newIdempotencyLRU(2)
	lru.Add("a")
	assert.False(t, lru.Add("a"))
	assert.Equal(t, 1, lru.Size())
}

// gatedChecker blocks HasRequest for gated keys until release is closed.
type gatedChecker struct {
	gated   map[string]bool
	entered chan string
	release chan struct{}
}

func (g *gatedChecker) HasRequest(ctx context.Context, key string) (bool, error) {
	if !g.gated[key] {
		return false, nil
	}
	g.entered <- key
	select {
	case <-g.release:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func newGatedChecker(keys ...string) *gatedChecker {
	g := &gatedChecker{gated: map[string]bool{}, entered: make(chan string, 8), release: make(chan struct{})}
	for _, k := range keys {
		g.gated[k] = true
	}
	return g
}

func TestIdempotency_SlowLookupDoesNotBlockOtherKeys(t *testing.T) {
	store := newGatedChecker("slow")
	ic := newIdempotencyChecker(16, store, observability.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ic.Begin(ctx, "deposit", "slow") }()
	<-store.entered

	fast := make(chan error, 1)
	go func() { fast <- ic.Begin(ctx, "deposit", "fast") }()
	select {
	case err := <-fast:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lookup of another key held the checker")
	}

	close(store.release)
	require.NoError(t, <-done)
}

func TestIdempotency_ConcurrentLookupsClaimOnce(t *testing.T) {
	store := newGatedChecker("k")
	ic := newIdempotencyChecker(16, store, observability.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- ic.Begin(ctx, "redeem", "k") }()
	}
	<-store.entered
	<-store.entered
	close(store.release)

	var claimed, duplicates int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			claimed++
		case assert.ErrorIs(t, err, poolerr.ErrDuplicateRequest):
			duplicates++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, duplicates)

	ic.Finish("k", true)
	assert.ErrorIs(t, ic.Begin(ctx, "redeem", "k"), poolerr.ErrDuplicateRequest)
}
