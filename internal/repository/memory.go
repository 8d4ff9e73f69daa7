package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

// MemoryStore keeps committed accounts in process. Reads hand out copies so
// callers never alias stored buffers.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[domain.Address]*domain.Account
	transactions map[uuid.UUID]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[domain.Address]*domain.Account),
		transactions: make(map[uuid.UUID]time.Time),
	}
}

func (m *MemoryStore) Load(_ context.Context, addrs []domain.Address) (map[domain.Address]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[domain.Address]*domain.Account, len(addrs))
	for _, a := range addrs {
		if acct, ok := m.accounts[a]; ok {
			out[a] = acct.Clone()
		}
	}
	return out, nil
}

func (m *MemoryStore) Commit(_ context.Context, txID uuid.UUID, changes map[domain.Address]*domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[txID]; ok {
		return fmt.Errorf("Commit: %w: %s", domain.ErrDuplicateTransaction, txID)
	}
	for addr, acct := range changes {
		if acct == nil {
			delete(m.accounts, addr)
			continue
		}
		m.accounts[addr] = acct.Clone()
	}
	m.transactions[txID] = time.Now().UTC()
	return nil
}

func (m *MemoryStore) HasTransaction(_ context.Context, txID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transactions[txID]
	return ok, nil
}

// Put writes an account directly, bypassing transaction bookkeeping. Used
// to seed genesis state and test fixtures.
func (m *MemoryStore) Put(addr domain.Address, acct *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = acct.Clone()
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

var _ runtime.Store = (*MemoryStore)(nil)
