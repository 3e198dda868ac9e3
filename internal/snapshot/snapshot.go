// Package snapshot holds the lock-free, atomically-swapped published
// view of the most recent evaluation cycle that read handlers serve
// from (spec.md §5's "Latest snapshot" row).
package snapshot

import (
	"sync/atomic"

	"github.com/dcops/pdumonitor/internal/models"
)

// Store is a single-writer, many-reader cell holding the latest
// published snapshot. Readers never see a partially built value.
type Store struct {
	ptr atomic.Pointer[models.Snapshot]
}

func NewStore() *Store {
	s := &Store{}
	s.ptr.Store(&models.Snapshot{Stale: true})
	return s
}

// Publish swaps in a newly built snapshot. Callers build the value off
// to the side and only call Publish once it is complete.
func (s *Store) Publish(snap *models.Snapshot) {
	s.ptr.Store(snap)
}

// Latest returns the most recently published snapshot. Never nil.
func (s *Store) Latest() *models.Snapshot {
	return s.ptr.Load()
}
