package service

import "sync"

// venueLocks serializes admission mutations per venue.  Entries are
// reference counted and removed when the last holder unlocks, so the map
// only holds venues with work in flight.
type venueLocks struct {
	mu    sync.Mutex
	locks map[uint64]*venueLock
}

type venueLock struct {
	mu   sync.Mutex
	refs int
}

func newVenueLocks() *venueLocks {
	return &venueLocks{locks: make(map[uint64]*venueLock)}
}

// lock blocks until the caller owns venueID and returns the unlock func.
func (v *venueLocks) lock(venueID uint64) func() {
	v.mu.Lock()
	l := v.locks[venueID]
	if l == nil {
		l = &venueLock{}
		v.locks[venueID] = l
	}
	l.refs++
	v.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		v.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(v.locks, venueID)
		}
		v.mu.Unlock()
	}
}

func (v *venueLocks) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.locks)
}
