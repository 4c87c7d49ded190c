// Package session tracks which users are in AI mode.
//
// Membership is a plain set keyed by VK user ID. Two backends exist: an
// in-process map (lost on restart) and Redis (shared across replicas).
package session

import (
	"context"
	"sync"
)

// Store is the conversation state store. Implementations are safe for
// concurrent use; operations on different users never block each other
// beyond a single map or network round trip.
type Store interface {
	// Enter puts userID into AI mode. Entering twice is a no-op.
	Enter(ctx context.Context, userID int64) error
	// Exit removes userID from AI mode. Exiting when absent is a no-op.
	Exit(ctx context.Context, userID int64) error
	// InAIMode reports whether userID is in AI mode.
	InAIMode(ctx context.Context, userID int64) (bool, error)
	// Count returns the number of users in AI mode.
	Count(ctx context.Context) (int, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps AI mode membership in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]struct{})}
}

func (s *MemoryStore) Enter(_ context.Context, userID int64) error {
	s.mu.Lock()
	s.users[userID] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exit(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) InAIMode(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	_, ok := s.users[userID]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// UserLocks serializes work per user. Each user gets its own mutex, so
// different users never wait on each other. Entries are refcounted and
// removed once the last holder or waiter releases them.
type UserLocks struct {
	mu    sync.Mutex
	users map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUserLocks creates a lock set.
func NewUserLocks() *UserLocks {
	return &UserLocks{users: make(map[int64]*userLock)}
}

// Lock acquires the lock for userID and returns its unlock function.
// The unlock function must be called exactly once.
func (l *UserLocks) Lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLock{}
		l.users[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.users, userID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of users currently holding or waiting on a lock.
func (l *UserLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
