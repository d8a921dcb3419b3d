// Package replica keeps a client-side copy of server records and merges
// local writes into it before the server confirms them.
package replica

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Store is a keyed cache of confirmed records plus optimistic overlays.
// Reads see an overlay in place of the confirmed record until the server
// delivers a version at least as new.
type Store[T any] struct {
	mu        sync.RWMutex
	key       func(T) string
	version   func(T) time.Time
	confirmed map[string]T
	overlays  map[string]overlay[T]
	seq       uint64
}

type overlay[T any] struct {
	rec   T
	token uint64
}

// New creates a store. key identifies a record and version orders its
// revisions; newer versions win.
func New[T any](key func(T) string, version func(T) time.Time) *Store[T] {
	return &Store[T]{
		key:       key,
		version:   version,
		confirmed: make(map[string]T),
		overlays:  make(map[string]overlay[T]),
	}
}

// Optimistic records a local write ahead of server confirmation. The returned
// rollback removes it again unless a later write to the same key replaced it.
func (s *Store[T]) Optimistic(rec T) (rollback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	token := s.seq
	id := s.key(rec)
	s.overlays[id] = overlay[T]{rec: rec, token: token}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if o, ok := s.overlays[id]; ok && o.token == token {
			delete(s.overlays, id)
		}
	}
}

// Confirm stores a record pushed or returned by the server
func (s *Store[T]) Confirm(rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmLocked(rec)
}

// Resolve replaces a provisional record stored under tempID with the
// server's copy, which may carry a different key.
func (s *Store[T]) Resolve(tempID string, rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlays, tempID)
	s.confirmLocked(rec)
}

func (s *Store[T]) confirmLocked(rec T) {
	id := s.key(rec)
	if current, ok := s.confirmed[id]; ok && s.version(rec).Before(s.version(current)) {
		return
	}
	s.confirmed[id] = rec
	if o, ok := s.overlays[id]; ok && !s.version(o.rec).After(s.version(rec)) {
		delete(s.overlays, id)
	}
}

// ApplySnapshot replaces the confirmed set with a full server listing.
// Overlays newer than the snapshot's copy survive.
func (s *Store[T]) ApplySnapshot(recs []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.confirmed = make(map[string]T, len(recs))
	for _, rec := range recs {
		s.confirmLocked(rec)
	}
}

// Remove drops a record and any overlay for it
func (s *Store[T]) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.confirmed, id)
	delete(s.overlays, id)
}

// Get returns the visible record for id
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.overlays[id]; ok {
		return o.rec, true
	}
	rec, ok := s.confirmed[id]
	return rec, ok
}

// Confirmed returns the last server copy of id, ignoring overlays
func (s *Store[T]) Confirmed(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.confirmed[id]
	return rec, ok
}

// Pending reports whether id has an unconfirmed local write
func (s *Store[T]) Pending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overlays[id]
	return ok
}

// List returns every visible record, newest version first
func (s *Store[T]) List() []T {
	s.mu.RLock()
	out := make([]T, 0, len(s.confirmed)+len(s.overlays))
	for id, rec := range s.confirmed {
		if _, ok := s.overlays[id]; !ok {
			out = append(out, rec)
		}
	}
	for _, o := range s.overlays {
		out = append(out, o.rec)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b T) int {
		if c := s.version(b).Compare(s.version(a)); c != 0 {
			return c
		}
		return strings.Compare(s.key(a), s.key(b))
	})
	return out
}

// Len returns the number of visible records
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.overlays)
	for id := range s.confirmed {
		if _, ok := s.overlays[id]; !ok {
			n++
		}
	}
	return n
}
