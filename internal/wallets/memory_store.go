package wallets

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewMemoryStore creates an empty in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

func key(chain, address string) string {
	return NormalizeChain(chain) + ":" + NormalizeAddress(address)
}

func (s *MemoryStore) FindOne(ctx context.Context, chain, address string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[key(chain, address)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneWallet(w)
	return cp, nil
}

func (s *MemoryStore) Find(ctx context.Context, q Query) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Wallet
	for _, w := range s.wallets {
		if q.Chain != "" && w.Chain != NormalizeChain(q.Chain) {
			continue
		}
		if q.Blacklisted != nil && w.Blacklisted != *q.Blacklisted {
			continue
		}
		if q.Suspicious != nil && w.Suspicious != *q.Suspicious {
			continue
		}
		result = append(result, cloneWallet(w))
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneWallet(w)
	cp.Chain = NormalizeChain(w.Chain)
	cp.Address = NormalizeAddress(w.Address)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.wallets[cp.Key()] = cp
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, chain, address string, fn func(*Wallet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(chain, address)
	w, ok := s.wallets[k]
	if !ok {
		return ErrNotFound
	}
	cp := cloneWallet(w)
	if err := fn(cp); err != nil {
		return err
	}
	cp.Chain = NormalizeChain(cp.Chain)
	cp.Address = NormalizeAddress(cp.Address)
	cp.UpdatedAt = time.Now()
	s.wallets[k] = cp
	return nil
}

func cloneWallet(w *Wallet) *Wallet {
	cp := *w
	if w.Flags != nil {
		cp.Flags = make([]Flag, len(w.Flags))
		copy(cp.Flags, w.Flags)
	}
	return &cp
}
