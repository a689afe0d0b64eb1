package led

import "sync/atomic"

// Lock is the flash lock. While engaged, the Dispatcher drops every
// request that does not carry BypassLock.
type Lock struct {
	engaged atomic.Bool
}

// Engage sets the lock. It reports false if the lock was already engaged.
func (l *Lock) Engage() bool {
	return l.engaged.CompareAndSwap(false, true)
}

// Release clears the lock.
func (l *Lock) Release() {
	l.engaged.Store(false)
}

// Engaged reports whether the lock is set.
func (l *Lock) Engaged() bool {
	return l.engaged.Load()
}
