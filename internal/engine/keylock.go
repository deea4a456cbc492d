package engine

import (
	"sync"

	"github.com/slotline/bookingd/internal/model"
)

// keyLocks serializes operations on one (provider, date, start) tuple,
// the unit of atomicity. Entries are reference-counted so the map does
// not grow with every key ever touched.
type keyLocks struct {
	mu    sync.Mutex
	locks map[model.WaitKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[model.WaitKey]*lockEntry)}
}

// Lock acquires the key's mutex and returns its release function.
func (k *keyLocks) Lock(key model.WaitKey) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
