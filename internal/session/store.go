package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Context
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Context), now: time.Now}
}

// Load returns a copy of the stored session, or a fresh one.
func (s *MemoryStore) Load(ctx context.Context, conversationID int64) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[conversationID]
	if !ok {
		return New(conversationID), nil
	}
	return &c, nil
}

func (s *MemoryStore) Save(ctx context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.UpdatedAt = s.now().UTC()
	s.sessions[c.ConversationID] = cp
	return nil
}

// Sweep drops sessions idle for longer than idle and returns how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.sessions {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Locker serializes work per conversation.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*lockEntry)}
}

// Lock blocks until the conversation is free and returns the unlock func.
func (l *Locker) Lock(conversationID int64) func() {
	l.mu.Lock()
	e, ok := l.locks[conversationID]
	if !ok {
		e = &lockEntry{}
		l.locks[conversationID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}
