package risk

import (
	"context"
	"sync"
	"time"

	"github.com/LegionofMany/blockpages-risk/internal/idgen"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// MemoryStore is an in-memory Store for tests and DB-less development.
// Override writes and their history entries happen under one lock, which
// gives the same all-or-nothing behavior the Postgres store gets from a
// transaction.
type MemoryStore struct {
	mu        sync.RWMutex
	overrides map[string]*Override
	history   map[string][]*HistoryEntry
}

// NewMemoryStore creates an empty in-memory override/history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides: make(map[string]*Override),
		history:   make(map[string][]*HistoryEntry),
	}
}

func storeKey(chain, address string) string {
	return wallets.NormalizeChain(chain) + ":" + wallets.NormalizeAddress(address)
}

func (s *MemoryStore) GetOverride(ctx context.Context, chain, address string) (*Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov, ok := s.overrides[storeKey(chain, address)]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	return cloneOverride(ov), nil
}

func (s *MemoryStore) SetOverride(ctx context.Context, ov *Override, entry *HistoryEntry) (*Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey(ov.Chain, ov.Address)
	now := time.Now()

	stored, ok := s.overrides[k]
	if !ok {
		stored = &Override{
			Chain:     wallets.NormalizeChain(ov.Chain),
			Address:   wallets.NormalizeAddress(ov.Address),
			CreatedAt: now,
		}
	}
	// Partial update: nil fields leave the stored value untouched.
	if ov.Score != nil {
		score := Clamp(*ov.Score)
		stored.Score = &score
	}
	if ov.Category != nil {
		cat := *ov.Category
		stored.Category = &cat
	}
	if ov.UpdatedBy != "" {
		stored.UpdatedBy = ov.UpdatedBy
	}
	stored.UpdatedAt = now
	s.overrides[k] = stored

	s.appendLocked(k, entry)
	return cloneOverride(stored), nil
}

func (s *MemoryStore) ClearOverride(ctx context.Context, chain, address string, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey(chain, address)
	if _, ok := s.overrides[k]; !ok {
		return ErrOverrideNotFound
	}
	delete(s.overrides, k)
	s.appendLocked(k, entry)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, chain, address string, limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.history[storeKey(chain, address)]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}

	// Oldest first.
	result := make([]*HistoryEntry, 0, len(all)-start)
	for _, e := range all[start:] {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) appendLocked(k string, entry *HistoryEntry) {
	cp := *entry
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("rh_")
	}
	if cp.Date.IsZero() {
		cp.Date = time.Now()
	}
	s.history[k] = append(s.history[k], &cp)
}

func cloneOverride(ov *Override) *Override {
	cp := *ov
	if ov.Score != nil {
		score := *ov.Score
		cp.Score = &score
	}
	if ov.Category != nil {
		cat := *ov.Category
		cp.Category = &cat
	}
	return &cp
}
