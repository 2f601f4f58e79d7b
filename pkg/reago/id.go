package reago

import "sync/atomic"

// globalIDCounter is the source of unique IDs for listeners and
// subscription handles. Atomic so ID generation needs no lock.
var globalIDCounter uint64

// nextID returns the next unique ID.
// IDs are monotonically increasing and never reused.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}
