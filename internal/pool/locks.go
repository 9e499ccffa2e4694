package pool

import (
	"context"
	"sync"
)

// keyedMutex hands out one exclusive lock per key. Entries are reference
// counted and dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() { k.unlock(key, l) }, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) unlock(key string, l *keyedLock) {
	<-l.ch
	k.release(key, l)
}

func (k *keyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// lockWorkflow takes the user lock, then the reserve lock. Every workflow
// uses this order.
func (o *Orchestrator) lockWorkflow(ctx context.Context, userKey, asset string) (func(), error) {
	unlockUser, err := o.locks.Lock(ctx, "user:"+userKey)
	if err != nil {
		return nil, err
	}
	unlockReserve, err := o.locks.Lock(ctx, "reserve:"+asset)
	if err != nil {
		unlockUser()
		return nil, err
	}
	return func() {
		unlockReserve()
		unlockUser()
	}, nil
}
