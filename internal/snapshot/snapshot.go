// Package snapshot provides a generic atomically-swapped value container,
// used for the Holder Snapshot (HS) and Subnet Roster (SR) of spec.md §4.3:
// both are rebuilt wholesale on a TTL and readers must observe a coherent
// snapshot without locking on the read path (spec.md §9, "Holder/roster
// snapshots are best modeled as atomically swapped immutable snapshots").
package snapshot

import (
	"sync/atomic"
	"time"
)

// Snapshot[T] holds the most recent value of T along with the time it was
// built, swapped in atomically by Replace and read without locking by Get.
type Snapshot[T any] struct {
	ptr atomic.Pointer[holder[T]]
	ttl time.Duration
}

type holder[T any] struct {
	value   T
	builtAt time.Time
}

// New creates an empty Snapshot with the given TTL. Get returns the zero
// value and ok=false until the first Replace.
func New[T any](ttl time.Duration) *Snapshot[T] {
	return &Snapshot[T]{ttl: ttl}
}

// Replace atomically installs value as the current snapshot, stamped with
// the current time.
func (s *Snapshot[T]) Replace(value T) {
	s.ptr.Store(&holder[T]{value: value, builtAt: time.Now()})
}

// Get returns the current value and whether one has ever been built.
func (s *Snapshot[T]) Get() (T, bool) {
	h := s.ptr.Load()
	if h == nil {
		var zero T
		return zero, false
	}
	return h.value, true
}

// Stale reports whether the current snapshot is older than its TTL, or
// whether no snapshot has been built yet.
func (s *Snapshot[T]) Stale() bool {
	h := s.ptr.Load()
	if h == nil {
		return true
	}
	return time.Since(h.builtAt) >= s.ttl
}

// BuiltAt returns the time the current snapshot was built, and false if
// none has been built yet.
func (s *Snapshot[T]) BuiltAt() (time.Time, bool) {
	h := s.ptr.Load()
	if h == nil {
		return time.Time{}, false
	}
	return h.builtAt, true
}
