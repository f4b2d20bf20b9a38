package corridor

import "sync/atomic"

// Store holds the most recent snapshot for one bot.
//
// Writers replace the whole value; readers always observe a complete snapshot.
type Store struct {
	latest atomic.Pointer[Snapshot]
}

// NewStore returns an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the stored snapshot.
func (s *Store) Set(snap Snapshot) {
	s.latest.Store(&snap)
}

// Latest returns the stored snapshot, if any has been received yet.
func (s *Store) Latest() (Snapshot, bool) {
	snap := s.latest.Load()
	if snap == nil {
		return Snapshot{}, false
	}

	return *snap, true
}
