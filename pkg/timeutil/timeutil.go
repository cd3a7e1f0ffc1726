// Package timeutil resolves calendar days in the configured timezone and
// provides an injectable clock.
package timeutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "UTC"

// LoadLocation resolves an IANA zone name. Empty means DefaultTimezone.
// Fixed offsets like "+05:00" are accepted for hosts without tzdata.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if t, perr := time.Parse("-07:00", name); perr == nil {
		_, offset := t.Zone()
		return time.FixedZone(name, offset), nil
	}
	return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", name, err)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Calendar resolves calendar days for a timezone policy.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar creates a Calendar. Nil arguments fall back to the system clock and UTC.
func NewCalendar(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clock, loc: loc}
}

// Now returns the current time in the calendar's zone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Today returns the current calendar day.
func (c *Calendar) Today() shared.Date {
	return shared.DateOf(c.clock.Now(), c.loc)
}

// DayOf returns the calendar day of t.
func (c *Calendar) DayOf(t time.Time) shared.Date {
	return shared.DateOf(t, c.loc)
}

// Location returns the calendar's zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}
