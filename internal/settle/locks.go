package settle

import "sync"

// identityLocks serializes settlement per identity within this process. The
// ledger's partial unique index covers races across processes; this keeps a
// single process from ever issuing two credit calls for one identity.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the identity's lock is held and returns the release
// function. Entries are reference counted so the map does not grow without
// bound.
func (l *identityLocks) acquire(identity string) func() {
	l.mu.Lock()
	entry, ok := l.locks[identity]
	if !ok {
		entry = &lockEntry{}
		l.locks[identity] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, identity)
		}
		l.mu.Unlock()
	}
}
