// Package lock provides a per-key mutual exclusion lease. The grant manager
// uses it to serialize grant creation per user across processes; a single
// node can rely on the in-memory implementation, a fleet uses the redis one.
package lock

import "context"

// Locker acquires an exclusive lease on a key, blocking until the lease is
// available or ctx is done. The returned release func must always be called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
