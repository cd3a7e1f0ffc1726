package campus

import (
	"fmt"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// Directory is the static set of campus locations loaded at startup.
type Directory struct {
	locations []Location
	byID      map[string]int
}

// NewDirectory validates locations and indexes them by id.
func NewDirectory(locations ...Location) (*Directory, error) {
	d := &Directory{
		locations: make([]Location, 0, len(locations)),
		byID:      make(map[string]int, len(locations)),
	}
	for _, l := range locations {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.byID[l.ID]; dup {
			return nil, fmt.Errorf("campus: duplicate location %q", l.ID)
		}
		d.byID[l.ID] = len(d.locations)
		d.locations = append(d.locations, l)
	}
	return d, nil
}

// Get returns a location or shared.ErrLocationNotFound.
func (d *Directory) Get(id string) (Location, error) {
	i, ok := d.byID[id]
	if !ok {
		return Location{}, shared.ErrLocationNotFound
	}
	return d.locations[i], nil
}

// All returns locations in configuration order.
func (d *Directory) All() []Location {
	return append([]Location(nil), d.locations...)
}

// DefaultLocations returns the built-in campus.
func DefaultLocations() []Location {
	return []Location{
		{ID: "library", Name: "Library", Description: "Quiet study space", Capacity: 30, Access: Public()},
		{ID: "study_hall", Name: "Study Hall", Description: "Group study tables", Capacity: 50, Access: Public()},
		{ID: "cafe", Name: "Campus Cafe", Description: "Casual hangout", Capacity: 20, Access: Public()},
		{ID: "coding_lab", Name: "Coding Lab", Description: "Pair programming stations", Capacity: 12, Access: LevelRequired(5)},
		{ID: "observatory", Name: "Observatory", Description: "Rooftop science deck", Capacity: 8, Access: LevelRequired(10)},
		{ID: "mentor_lounge", Name: "Mentor Lounge", Description: "Mentors and invited guests", Capacity: 6, Access: Restricted()},
	}
}
