package reago

import "sync"

// subEntry is one registered listener callback on a Cell.
// listenerID is non-zero when the callback came from a tracking-context
// Listener, so repeated Watch/Pick calls by the same listener do not stack
// duplicate registrations.
type subEntry struct {
	id         uint64
	listenerID uint64
	fn         func()
}

// Cell is one observable slot: a key, its current value, the initial value
// snapshot taken at construction, and the set of listener callbacks to run
// on write.
type Cell struct {
	key string

	// mu protects value.
	mu    sync.RWMutex
	value any

	// initial is the construction-time snapshot. Never mutated; hosts use
	// it as a stable default during interrupted render passes.
	initial any

	// subMu protects subs.
	subMu sync.Mutex
	subs  []subEntry
}

func newCell(key string, value any) *Cell {
	return &Cell{
		key:     key,
		value:   value,
		initial: value,
	}
}

// Key returns the cell's property name.
func (c *Cell) Key() string { return c.key }

// Value returns the cell's current value. Reading a Cell directly never
// subscribes anything; subscription happens on the resolution path.
func (c *Cell) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Initial returns the value the cell was constructed with.
func (c *Cell) Initial() any { return c.initial }

// set writes the current value. Notification is the caller's job so the
// model can order the write, the debug record, and the fan-out.
func (c *Cell) set(value any) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// subscribe registers fn and returns an idempotent unsubscribe handle.
// Calling the handle twice is a no-op, not an error.
func (c *Cell) subscribe(fn func()) func() {
	return c.add(0, fn)
}

// subscribeListener registers l.Notify, deduplicating by listener ID so the
// same listener resolving the same cell repeatedly holds one registration.
// The returned handle removes that registration; fresh is false when the
// listener was already registered, so callers rolling back a failed
// resolution do not tear down a subscription an earlier call established.
func (c *Cell) subscribeListener(l Listener) (unsub func(), fresh bool) {
	c.subMu.Lock()
	lid := l.ID()
	for _, existing := range c.subs {
		if existing.listenerID == lid {
			id := existing.id
			c.subMu.Unlock()
			return func() { c.remove(id) }, false
		}
	}
	c.subMu.Unlock()
	return c.add(lid, l.Notify), true
}

func (c *Cell) add(listenerID uint64, fn func()) func() {
	id := nextID()

	c.subMu.Lock()
	c.subs = append(c.subs, subEntry{id: id, listenerID: listenerID, fn: fn})
	c.subMu.Unlock()

	return func() { c.remove(id) }
}

func (c *Cell) remove(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, existing := range c.subs {
		if existing.id == id {
			// Swap with last; listener order across independent
			// registrations is not guaranteed.
			c.subs[i] = c.subs[len(c.subs)-1]
			c.subs = c.subs[:len(c.subs)-1]
			return
		}
	}
}

// notify runs every registered callback synchronously and returns how many
// ran. Copy-before-notify so a callback can unsubscribe without deadlock.
func (c *Cell) notify() int {
	c.subMu.Lock()
	subs := make([]subEntry, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
	return len(subs)
}

// listenerCount returns the number of registered callbacks.
func (c *Cell) listenerCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}
