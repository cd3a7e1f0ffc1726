package memory

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"

	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

type room struct {
	mu        sync.Mutex
	occupants map[shared.UserID]campus.Occupant
}

// OccupancyStore implements campus.OccupancyStore in process memory.
//
// Lock order: user lock, then room locks in ascending location id. A join
// that moves a user holds both rooms, so the user is never seen in two places.
type OccupancyStore struct {
	rooms     *xsync.MapOf[string, *room]
	userLocks *xsync.MapOf[string, *sync.Mutex]
	userLoc   *xsync.MapOf[string, string]
}

// NewOccupancyStore creates an empty store.
func NewOccupancyStore() *OccupancyStore {
	return &OccupancyStore{
		rooms:     xsync.NewMapOf[*room](),
		userLocks: xsync.NewMapOf[*sync.Mutex](),
		userLoc:   xsync.NewMapOf[string](),
	}
}

func (s *OccupancyStore) room(id string) *room {
	r, _ := s.rooms.LoadOrStore(id, &room{occupants: make(map[shared.UserID]campus.Occupant)})
	return r
}

func (s *OccupancyStore) lockUser(userID shared.UserID) func() {
	m, _ := s.userLocks.LoadOrStore(string(userID), &sync.Mutex{})
	m.Lock()
	return m.Unlock
}

// lockRooms locks one or two rooms in id order.
func (s *OccupancyStore) lockRooms(a, b string) func() {
	if b == "" || a == b {
		r := s.room(a)
		r.mu.Lock()
		return r.mu.Unlock
	}
	if b < a {
		a, b = b, a
	}
	ra, rb := s.room(a), s.room(b)
	ra.mu.Lock()
	rb.mu.Lock()
	return func() {
		rb.mu.Unlock()
		ra.mu.Unlock()
	}
}

// Join places occ in loc, moving the user out of any previous location.
func (s *OccupancyStore) Join(ctx context.Context, loc campus.Location, occ campus.Occupant) (campus.JoinOutcome, error) {
	if err := ctx.Err(); err != nil {
		return campus.JoinOutcome{}, shared.StorageError("campus", "Join", err)
	}
	occ.LocationID = loc.ID

	unlockUser := s.lockUser(occ.UserID)
	defer unlockUser()

	prev, _ := s.userLoc.Load(string(occ.UserID))
	unlockRooms := s.lockRooms(loc.ID, prev)
	defer unlockRooms()

	target := s.room(loc.ID)
	if existing, ok := target.occupants[occ.UserID]; ok {
		existing.LastSeenAt = occ.LastSeenAt
		if occ.DisplayName != "" {
			existing.DisplayName = occ.DisplayName
		}
		target.occupants[occ.UserID] = existing
		return campus.JoinOutcome{AlreadyPresent: true, Occupancy: len(target.occupants)}, nil
	}

	if len(target.occupants) >= loc.Capacity {
		return campus.JoinOutcome{}, shared.ErrLocationFull
	}

	out := campus.JoinOutcome{}
	if prev != "" && prev != loc.ID {
		delete(s.room(prev).occupants, occ.UserID)
		out.PreviousLocation = prev
	}
	target.occupants[occ.UserID] = occ
	s.userLoc.Store(string(occ.UserID), loc.ID)
	out.Occupancy = len(target.occupants)
	return out, nil
}

// Leave removes the user from locationID.
func (s *OccupancyStore) Leave(ctx context.Context, locationID string, userID shared.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StorageError("campus", "Leave", err)
	}
	unlockUser := s.lockUser(userID)
	defer unlockUser()

	unlockRoom := s.lockRooms(locationID, "")
	defer unlockRoom()

	r := s.room(locationID)
	if _, ok := r.occupants[userID]; !ok {
		return false, nil
	}
	delete(r.occupants, userID)
	if cur, _ := s.userLoc.Load(string(userID)); cur == locationID {
		s.userLoc.Delete(string(userID))
	}
	return true, nil
}

// Touch refreshes the heartbeat of the user's current occupancy.
func (s *OccupancyStore) Touch(ctx context.Context, userID shared.UserID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StorageError("campus", "Touch", err)
	}
	unlockUser := s.lockUser(userID)
	defer unlockUser()

	locationID, ok := s.userLoc.Load(string(userID))
	if !ok {
		return false, nil
	}
	unlockRoom := s.lockRooms(locationID, "")
	defer unlockRoom()

	r := s.room(locationID)
	occ, ok := r.occupants[userID]
	if !ok {
		return false, nil
	}
	if at.After(occ.LastSeenAt) {
		occ.LastSeenAt = at
	}
	r.occupants[userID] = occ
	return true, nil
}

// Occupants lists a location ordered by join time.
func (s *OccupancyStore) Occupants(ctx context.Context, locationID string) ([]campus.Occupant, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("campus", "Occupants", err)
	}
	r, ok := s.rooms.Load(locationID)
	if !ok {
		return []campus.Occupant{}, nil
	}
	r.mu.Lock()
	out := make([]campus.Occupant, 0, len(r.occupants))
	for _, o := range r.occupants {
		out = append(out, o)
	}
	r.mu.Unlock()

	campus.SortOccupants(out)
	return out, nil
}

// LocationOf returns the user's location or "".
func (s *OccupancyStore) LocationOf(ctx context.Context, userID shared.UserID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", shared.StorageError("campus", "LocationOf", err)
	}
	id, _ := s.userLoc.Load(string(userID))
	return id, nil
}

// RemoveStale removes occupants silent since before cutoff.
func (s *OccupancyStore) RemoveStale(ctx context.Context, cutoff time.Time) ([]campus.Occupant, error) {
	var candidates []campus.Occupant
	s.rooms.Range(func(_ string, r *room) bool {
		r.mu.Lock()
		for _, o := range r.occupants {
			if o.IsStale(cutoff) {
				candidates = append(candidates, o)
			}
		}
		r.mu.Unlock()
		return true
	})

	removed := make([]campus.Occupant, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, shared.StorageError("campus", "RemoveStale", err)
		}
		if s.removeIfStale(c, cutoff) {
			removed = append(removed, c)
		}
	}
	return removed, nil
}

// removeIfStale re-checks under lock: a heartbeat may have landed meanwhile.
func (s *OccupancyStore) removeIfStale(c campus.Occupant, cutoff time.Time) bool {
	unlockUser := s.lockUser(c.UserID)
	defer unlockUser()
	unlockRoom := s.lockRooms(c.LocationID, "")
	defer unlockRoom()

	r := s.room(c.LocationID)
	cur, ok := r.occupants[c.UserID]
	if !ok || !cur.IsStale(cutoff) {
		return false
	}
	delete(r.occupants, c.UserID)
	if loc, _ := s.userLoc.Load(string(c.UserID)); loc == c.LocationID {
		s.userLoc.Delete(string(c.UserID))
	}
	return true
}
