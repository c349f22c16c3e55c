package locks

import (
	"sync"

	"github.com/nadermx/heroesandmore/internal/utils"
)

// KeyedMutex serializes work per listing ID within this process. Entries are
// reference counted and removed once the last holder releases, so the table
// stays bounded by the number of listings with in-flight operations.
//
// Cross-process safety does not depend on this table; every store write also
// carries its precondition in the update filter.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[utils.SixID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[utils.SixID]*entry),
	}
}

// Lock acquires the mutex for the given key, blocking until it is free.
func (k *KeyedMutex) Lock(key utils.SixID) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for the given key. It panics if the key is not
// currently held, mirroring sync.Mutex semantics.
func (k *KeyedMutex) Unlock(key utils.SixID) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("locks: unlock of unheld key")
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of keys with waiters or holders. Used by tests to
// verify entries are reclaimed.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
