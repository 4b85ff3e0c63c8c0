// Package lock provides the mutual exclusion used to keep at most one
// candidate scan running at a time.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned when the key is already held by someone else
var ErrLocked = errors.New("lock is held")

// Lock is a held lock. Release is idempotent.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks without blocking
type Locker interface {
	// TryLock acquires key for at most ttl. It returns ErrLocked when the key
	// is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Local is an in-process Locker. Expired holders are replaced.
type Local struct {
	mu    sync.Mutex
	held  map[string]localHold
	clock func() time.Time
}

type localHold struct {
	token   string
	expires time.Time
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{held: make(map[string]localHold), clock: time.Now}
}

// TryLock implements Locker
func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, ErrLocked
	}
	token := newToken()
	l.held[key] = localHold{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *Local
	key   string
	token string
	once  sync.Once
}

func (ll *localLock) Release(context.Context) error {
	ll.once.Do(func() {
		ll.owner.mu.Lock()
		defer ll.owner.mu.Unlock()
		if h, ok := ll.owner.held[ll.key]; ok && h.token == ll.token {
			delete(ll.owner.held, ll.key)
		}
	})
	return nil
}
