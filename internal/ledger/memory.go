package ledger

import (
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type balanceKey struct {
	asset  string
	userID uuid.UUID
}

// MemoryStore keeps reserves, balances and entries in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	reserves map[string]Reserve
	balances map[balanceKey]UserBalance
	entries  []Entry
	requests map[string]struct{}
	seq      int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reserves: make(map[string]Reserve),
		balances: make(map[balanceKey]UserBalance),
		requests: make(map[string]struct{}),
		now:      time.Now,
	}
}

// WithClock replaces the timestamp source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) CreateReserve(_ context.Context, r Reserve) error {
	if err := ValidateNewReserve(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reserves[r.Asset]; exists {
		return fmt.Errorf("reserve %s already exists", r.Asset)
	}
	r.UpdatedAt = s.now()
	s.reserves[r.Asset] = r
	return nil
}

func (s *MemoryStore) SetReserveActive(_ context.Context, asset string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reserves[asset]
	if !ok {
		return reserveNotFound(asset)
	}
	r.Active = active
	r.UpdatedAt = s.now()
	s.reserves[asset] = r
	return nil
}

func (s *MemoryStore) ListReserves(_ context.Context) ([]Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reserve, 0, len(s.reserves))
	for _, r := range s.reserves {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *MemoryStore) QueryReserve(_ context.Context, asset string) (Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reserves[asset]
	if !ok {
		return Reserve{}, reserveNotFound(asset)
	}
	return r, nil
}

func (s *MemoryStore) QueryUserBalance(_ context.Context, asset string, userID uuid.UUID) (UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.reserves[asset]; !ok {
		return UserBalance{}, reserveNotFound(asset)
	}
	return s.balanceLocked(asset, userID), nil
}

func (s *MemoryStore) ListUserBalances(_ context.Context, userID uuid.UUID) ([]UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []UserBalance
	for k, b := range s.balances {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *MemoryStore) CreditDeposit(_ context.Context, m Mutation) (Entry, error) {
	return s.apply(EntryKindDeposit, m)
}

func (s *MemoryStore) DebitWithdrawal(_ context.Context, m Mutation) (Entry, error) {
	return s.apply(EntryKindWithdrawal, m)
}

func (s *MemoryStore) CreditBorrow(_ context.Context, m Mutation) (Entry, error) {
	return s.apply(EntryKindBorrow, m)
}

func (s *MemoryStore) DebitBorrow(_ context.Context, m Mutation) (Entry, error) {
	return s.apply(EntryKindRepay, m)
}

func (s *MemoryStore) Entries(_ context.Context, asset string, afterSequence int64, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Sequence <= afterSequence {
			continue
		}
		if asset != "" && e.Asset != asset {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) HasRequest(_ context.Context, requestKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.requests[requestKey]
	return ok, nil
}

func (s *MemoryStore) apply(kind EntryKind, m Mutation) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reserves[m.Asset]
	if !ok {
		return Entry{}, reserveNotFound(m.Asset)
	}
	b := s.balanceLocked(m.Asset, m.UserID)

	r, b, err := Apply(kind, r, b, m.Amount)
	if err != nil {
		return Entry{}, fmt.Errorf("%s %s: %w", kind, m.Asset, err)
	}

	now := s.now()
	r.UpdatedAt = now
	s.seq++
	entry := newEntry(s.seq, kind, m, now)

	s.reserves[m.Asset] = r
	s.balances[balanceKey{asset: m.Asset, userID: m.UserID}] = b
	s.entries = append(s.entries, entry)
	if m.RequestKey != "" {
		s.requests[m.RequestKey] = struct{}{}
	}
	return entry, nil
}

func (s *MemoryStore) balanceLocked(asset string, userID uuid.UUID) UserBalance {
	if b, ok := s.balances[balanceKey{asset: asset, userID: userID}]; ok {
		return b
	}
	return UserBalance{Asset: asset, UserID: userID}
}

func reserveNotFound(asset string) error {
	return fmt.Errorf("%w: %s", poolerr.ErrReserveNotFound, asset)
}

// ReserveNotFound builds the error stores return for an unknown asset.
func ReserveNotFound(asset string) error {
	return reserveNotFound(asset)
}
