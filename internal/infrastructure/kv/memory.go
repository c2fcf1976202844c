package kv

import (
	"context"
	"sync"
	"time"
)

type pendingState struct {
	accountID int64
	expiresAt time.Time
}

// MemoryStateStore keeps OAuth states in a map with explicit expiry.
// Expired entries are dropped on access and by the periodic sweep.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]pendingState
	now    func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewMemoryStateStore creates an empty store. Call StartSweeper to
// reclaim abandoned states in long-running processes.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]pendingState),
		now:    time.Now,
	}
}

func (s *MemoryStateStore) Put(_ context.Context, state string, accountID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = pendingState{accountID: accountID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return 0, ErrStateNotFound
	}
	delete(s.states, state)

	if s.now().After(entry.expiresAt) {
		return 0, ErrStateNotFound
	}
	return entry.accountID, nil
}

// Sweep removes expired states and returns how many were dropped
func (s *MemoryStateStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, v := range s.states {
		if now.After(v.expiresAt) {
			delete(s.states, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored states, expired or not
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// StartSweeper runs Sweep every interval until StopSweeper is called
func (s *MemoryStateStore) StartSweeper(interval time.Duration) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// StopSweeper stops the sweeper and waits for it to exit
func (s *MemoryStateStore) StopSweeper() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// MemoryLocker serializes work per key inside one process
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryLocker creates a locker with no keys held
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

// TryLock acquires key if free. ttl is ignored; the lock lives until released.
func (l *MemoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	m, exists := l.locks[key]
	if !exists {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func() { once.Do(m.Unlock) }, true, nil
}
