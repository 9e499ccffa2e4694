package pool

import (
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/poolerr"
	"container/list"
	"context"
	"fmt"
	"sync"
)

// RequestChecker is the durable tier of deduplication.
type RequestChecker interface {
	HasRequest(ctx context.Context, requestKey string) (bool, error)
}

// idempotencyChecker implements two-tier deduplication: an in-memory LRU of
// recently committed keys, then the ledger store. Keys of workflows still
// running are tracked separately so concurrent duplicates are rejected too.
type idempotencyChecker struct {
	mu       sync.Mutex
	lru      *idempotencyLRU
	inflight map[string]struct{}
	store    RequestChecker
	metrics  *observability.Metrics
}

func newIdempotencyChecker(capacity int, store RequestChecker, metrics *observability.Metrics) *idempotencyChecker {
	return &idempotencyChecker{
		lru:      newIdempotencyLRU(capacity),
		inflight: make(map[string]struct{}),
		store:    store,
		metrics:  metrics,
	}
}

// Begin claims key for one workflow. It fails with ErrDuplicateRequest when
// the key was already committed or is being processed. The store lookup
// runs outside the lock so one slow lookup does not hold up other keys.
func (ic *idempotencyChecker) Begin(ctx context.Context, workflow, key string) error {
	// Tier 1: inflight + LRU check (hot path)
	ic.mu.Lock()
	err := ic.checkLocked(workflow, key)
	ic.mu.Unlock()
	if err != nil {
		return err
	}

	// Tier 2: store check (cold path)
	seen, err := ic.store.HasRequest(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency lookup %s: %w", key, err)
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	if seen {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(workflow, "store").Inc()
		ic.addLocked(key)
		return fmt.Errorf("%w: %s", poolerr.ErrDuplicateRequest, key)
	}
	// Another caller may have claimed or finished the key during the lookup.
	if err := ic.checkLocked(workflow, key); err != nil {
		return err
	}
	ic.inflight[key] = struct{}{}
	return nil
}

func (ic *idempotencyChecker) checkLocked(workflow, key string) error {
	if _, running := ic.inflight[key]; running {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(workflow, "inflight").Inc()
		return fmt.Errorf("%w: %s is in progress", poolerr.ErrDuplicateRequest, key)
	}
	if ic.lru.Contains(key) {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(workflow, "lru").Inc()
		return fmt.Errorf("%w: %s", poolerr.ErrDuplicateRequest, key)
	}
	return nil
}

// Finish releases key. Keys of workflows that committed anything to the
// ledger are remembered; the others may be retried.
func (ic *idempotencyChecker) Finish(key string, committed bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	delete(ic.inflight, key)
	if committed {
		ic.addLocked(key)
	}
}

func (ic *idempotencyChecker) addLocked(key string) {
	if ic.lru.Add(key) {
		ic.metrics.DedupLRUEvictions.Inc()
	}
	ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
}

// --- LRU Implementation ---

// idempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe; guarded by idempotencyChecker.mu.
type idempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &idempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *idempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists) and reports whether an older
// key was evicted.
func (lru *idempotencyLRU) Add(key string) bool {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return false
	}

	lru.cache[key] = lru.lruList.PushFront(key)

	if lru.lruList.Len() > lru.capacity {
		oldest := lru.lruList.Back()
		lru.lruList.Remove(oldest)
		delete(lru.cache, oldest.Value.(string))
		return true
	}
	return false
}

// Size returns current number of entries
func (lru *idempotencyLRU) Size() int {
	return lru.lruList.Len()
}
