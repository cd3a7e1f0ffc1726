package query

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST LOCATIONS QUERY
// Locations with current occupancy and a per-user can_join flag.
// ══════════════════════════════════════════════════════════════════════════════

// ListLocationsQuery asks for the campus view of one (optional) user.
type ListLocationsQuery struct {
	UserID string
}

// LocationView is one location with its live state.
type LocationView struct {
	Location  campus.Location
	Occupants []campus.Occupant
	Occupancy int

	// CanJoin is true when the user passes the access rule and a seat is free
	// (or the user is already there). Always false without a user.
	CanJoin bool

	// Present is true when the user currently occupies the location.
	Present bool
}

// ListLocationsHandler serves the campus view.
type ListLocationsHandler struct {
	directory *campus.Directory
	occupancy campus.OccupancyStore
	store     progress.Store

	storageTimeout time.Duration
}

// NewListLocationsHandler creates the handler.
func NewListLocationsHandler(directory *campus.Directory, occupancy campus.OccupancyStore, store progress.Store, storageTimeout time.Duration) *ListLocationsHandler {
	if storageTimeout <= 0 {
		storageTimeout = 3 * time.Second
	}
	return &ListLocationsHandler{
		directory:      directory,
		occupancy:      occupancy,
		store:          store,
		storageTimeout: storageTimeout,
	}
}

// Handle returns every location in directory order.
func (h *ListLocationsHandler) Handle(ctx context.Context, q ListLocationsQuery) ([]LocationView, error) {
	var (
		userID shared.UserID
		level  = progress.MinLevel
		err    error
	)

	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()

	if q.UserID != "" {
		userID, err = shared.NewUserID(q.UserID)
		if err != nil {
			return nil, err
		}
		a, err := h.store.Get(ctx, userID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			level = a.Level
		}
	}

	locations := h.directory.All()
	views := make([]LocationView, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			occ, err := h.occupancy.Occupants(gctx, loc.ID)
			if err != nil {
				return err
			}
			views[i] = h.view(loc, occ, userID, level)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (h *ListLocationsHandler) view(loc campus.Location, occ []campus.Occupant, userID shared.UserID, level int) LocationView {
	v := LocationView{
		Location:  loc,
		Occupants: occ,
		Occupancy: len(occ),
	}
	if userID == "" {
		return v
	}
	for _, o := range occ {
		if o.UserID == userID {
			v.Present = true
			break
		}
	}
	allowed := loc.Access.Check(userID, level) == nil
	v.CanJoin = allowed && (v.Present || v.Occupancy < loc.Capacity)
	return v
}
