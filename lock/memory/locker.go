// Package memorylock is the single-node Locker: plain in-process mutual
// exclusion keyed by string.
package memorylock

import (
	"context"
	"sync"
)

type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func New() *Locker {
	return &Locker{held: make(map[string]chan struct{})}
}

// Acquire blocks until the key is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, taken := l.held[key]
		if !taken {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}
			return release, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
			// Holder released; retry.
		}
	}
}
