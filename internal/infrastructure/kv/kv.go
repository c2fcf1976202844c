// Package kv provides short-lived shared state: pending OAuth states and
// per-account sync locks. The memory implementations serve a single
// process; the Redis implementations are shared across instances.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrStateNotFound is returned when a state is unknown, expired or already used
var ErrStateNotFound = errors.New("oauth state not found or expired")

// StateStore holds pending OAuth authorization states.
// Consume is single-use: a state validates at most once.
type StateStore interface {
	Put(ctx context.Context, state string, accountID int64, ttl time.Duration) error
	Consume(ctx context.Context, state string) (int64, error)
}

// Locker hands out exclusive per-key locks
type Locker interface {
	// TryLock acquires key without waiting. The returned release function
	// must be called to free it; ok is false when the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
