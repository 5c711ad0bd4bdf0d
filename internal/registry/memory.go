// Package registry keeps delivered signals addressable by (recipient, signal id).
package registry

import (
	"context"
	"sync"

	"signal-relay/internal/domain"
)

type key struct {
	recipient int64
	signalID  string
}

// Memory is a process-local registry. Entries are insert-once and never mutated.
type Memory struct {
	mu      sync.RWMutex
	entries map[key]domain.NormalizedSignal
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[key]domain.NormalizedSignal)}
}

// Put stores sig for recipient unless an entry already exists. It reports whether the
// entry was inserted.
func (m *Memory) Put(ctx context.Context, recipient int64, sig domain.NormalizedSignal) (bool, error) {
	k := key{recipient: recipient, signalID: sig.ID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[k]; exists {
		return false, nil
	}
	sig.TakeProfitLevels = append([]string(nil), sig.TakeProfitLevels...)
	m.entries[k] = sig
	return true, nil
}

func (m *Memory) Get(ctx context.Context, recipient int64, signalID string) (*domain.NormalizedSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.entries[key{recipient: recipient, signalID: signalID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sig.TakeProfitLevels = append([]string(nil), sig.TakeProfitLevels...)
	return &sig, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
