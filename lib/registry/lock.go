// Per-DB Admin Lock: a name-keyed exclusive lock. Modeled, per
// re-architecture guidance, as a striped/name-keyed mutex map
// rather than a single global lock held for the duration of long I/O.
package registry

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// LockMap is the per-DB admin lock. It is not reentrant: each operation
// acquires a name's lock once (the dispatcher acquires exactly once per
// request and releases on every exit path), and a second Lock of the same
// name by its holder blocks. Nothing detects or forbids such reentry.
type LockMap struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewLockMap creates an empty lock map.
func NewLockMap() *LockMap {
	return &LockMap{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

func (lm *LockMap) mutexFor(name string) *sync.Mutex {
	mu, _ := lm.locks.LoadOrCompute(name, func() *sync.Mutex { return &sync.Mutex{} })
	return mu
}

// Lock acquires the exclusive lock for name, blocking until available.
func (lm *LockMap) Lock(name string) {
	lm.mutexFor(name).Lock()
}

// Unlock releases the exclusive lock for name. Every exit path of the
// operation that called Lock must call Unlock exactly once.
func (lm *LockMap) Unlock(name string) {
	lm.mutexFor(name).Unlock()
}

// WithLock runs fn while holding name's lock, releasing it on every exit
// path including a panic unwinding through fn - the Go idiom for scoped
// lock acquisition that replaces manual scope-exit handling.
func (lm *LockMap) WithLock(name string, fn func() error) error {
	lm.Lock(name)
	defer lm.Unlock(name)
	return fn()
}
