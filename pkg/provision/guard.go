package provision

import (
	"sync"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

// guardKey identifies one entity in the lock table.
type guardKey struct {
	kind models.Kind
	name string
}

// guardEntry is a lock-table slot. refs counts live references so the
// slot can be dropped as soon as it is uncontended.
type guardEntry struct {
	refs int
	held bool
}

// Guard serializes mutating operations per entity. Locks are created
// lazily on first access and garbage-collected when released and
// uncontended, so the table only ever holds in-flight entities.
//
// Acquisition is fail-fast: a second mutation on the same entity is
// rejected immediately rather than queued, keeping request latency
// predictable. Read-only usage queries bypass the guard entirely.
type Guard struct {
	mu      sync.Mutex
	entries map[guardKey]*guardEntry
}

// NewGuard creates an empty lock table.
func NewGuard() *Guard {
	return &Guard{entries: make(map[guardKey]*guardEntry)}
}

// TryAcquire attempts to take the mutation lock for (kind, name).
// On success it returns a release function; on contention it returns
// ok=false without blocking.
func (g *Guard) TryAcquire(kind models.Kind, name string) (release func(), ok bool) {
	key := guardKey{kind: kind, name: name}

	g.mu.Lock()
	entry := g.entries[key]
	if entry == nil {
		entry = &guardEntry{}
		g.entries[key] = entry
	}
	if entry.held {
		g.mu.Unlock()
		return nil, false
	}
	entry.held = true
	entry.refs++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			entry.held = false
			entry.refs--
			if entry.refs == 0 {
				delete(g.entries, key)
			}
			g.mu.Unlock()
		})
	}, true
}

// Len reports the number of live lock-table slots. Used by tests to
// verify released entries are collected.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
