// Package lock provides drain mutual exclusion, in process or across hosts via Redis.
package lock

import (
	"context"
	"sync"
	"time"

	"DocketWatch/internal/ports"
)

// LocalLocker serializes holders within one process. Expired holds are reclaimable.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	gen  uint64
	now  func() time.Time
}

type localHold struct {
	gen     uint64
	expires time.Time
}

var _ ports.Locker = (*LocalLocker)(nil)

// NewLocalLocker returns an empty locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

// Acquire never blocks; ok=false means the key is currently held.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && (h.expires.IsZero() || now.Before(h.expires)) {
		return nil, false, nil
	}

	l.gen++
	gen := l.gen
	hold := localHold{gen: gen}
	if ttl > 0 {
		hold.expires = now.Add(ttl)
	}
	l.held[key] = hold

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.gen == gen {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}
