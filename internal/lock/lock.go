// Package lock provides run locks so only one instance executes a scheduled
// job at a time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotHeld is returned by Release when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires named, expiring locks.
type Locker interface {
	// TryAcquire returns ok=false without error when another holder has the lock.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LocalLocker serialises holders within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an in-process Locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: map[string]time.Time{},
		now:  time.Now,
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return &localLease{locker: l, key: key, expires: expires}, true, nil
}

type localLease struct {
	locker  *LocalLocker
	key     string
	expires time.Time
}

func (l *localLease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if current, ok := l.locker.held[l.key]; !ok || !current.Equal(l.expires) {
		return ErrNotHeld
	}
	delete(l.locker.held, l.key)
	return nil
}
