package campus

import (
	"context"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// OccupancyStore holds who is where. Implementations must make the capacity
// check and the mutation of one location a single atomic step, and must keep
// every user in at most one location.
type OccupancyStore interface {
	// Join places occ in loc, moving the user out of any other location.
	// Returns shared.ErrLocationFull when loc is at capacity. Rejoining the
	// current location only refreshes LastSeenAt.
	Join(ctx context.Context, loc Location, occ Occupant) (JoinOutcome, error)

	// Leave removes the user from locationID. Returns false if the user was
	// not there.
	Leave(ctx context.Context, locationID string, userID shared.UserID) (bool, error)

	// Touch refreshes LastSeenAt of the user's current occupancy.
	// Returns false if the user occupies no location.
	Touch(ctx context.Context, userID shared.UserID, at time.Time) (bool, error)

	// Occupants lists the occupants of a location ordered by join time.
	Occupants(ctx context.Context, locationID string) ([]Occupant, error)

	// LocationOf returns the user's location, or "" if absent.
	LocationOf(ctx context.Context, userID shared.UserID) (string, error)

	// RemoveStale removes every occupant silent since before cutoff and
	// returns the removed entries.
	RemoveStale(ctx context.Context, cutoff time.Time) ([]Occupant, error)
}
