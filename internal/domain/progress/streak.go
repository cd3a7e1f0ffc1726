package progress

import (
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// Streak counts consecutive calendar days with recorded activity.
type Streak struct {
	Current          int         `json:"current"`
	Longest          int         `json:"longest"`
	LastActivityDate shared.Date `json:"last_activity_date"`
}

// StreakOutcome classifies what RecordActivity did.
type StreakOutcome string

const (
	StreakStarted   StreakOutcome = "started"   // first activity ever
	StreakUnchanged StreakOutcome = "unchanged" // same day re-recorded
	StreakExtended  StreakOutcome = "extended"  // next consecutive day
	StreakReset     StreakOutcome = "reset"     // gap of more than one day
	StreakIgnored   StreakOutcome = "ignored"   // day earlier than the last one
)

// StreakChange reports the transition applied by RecordActivity.
type StreakChange struct {
	Outcome         StreakOutcome
	PreviousCurrent int
	DaysSinceLast   int
}

// FirstActivityOfDay is true when this activity opened a new calendar day.
func (c StreakChange) FirstActivityOfDay() bool {
	switch c.Outcome {
	case StreakStarted, StreakExtended, StreakReset:
		return true
	default:
		return false
	}
}

// RecordActivity applies one activity day to the streak. The day must already
// be resolved in the caller's timezone. Days earlier than LastActivityDate are
// ignored so late reports cannot corrupt Longest.
func RecordActivity(s Streak, day shared.Date) (Streak, StreakChange) {
	change := StreakChange{PreviousCurrent: s.Current}

	if day.IsZero() {
		change.Outcome = StreakIgnored
		return s, change
	}

	if s.LastActivityDate.IsZero() {
		s.Current = 1
		s.LastActivityDate = day
		if s.Longest < 1 {
			s.Longest = 1
		}
		change.Outcome = StreakStarted
		return s, change
	}

	diff := s.LastActivityDate.DaysUntil(day)
	change.DaysSinceLast = diff

	switch {
	case diff < 0:
		change.Outcome = StreakIgnored
		return s, change
	case diff == 0:
		change.Outcome = StreakUnchanged
		return s, change
	case diff == 1:
		s.Current++
		change.Outcome = StreakExtended
	default:
		s.Current = 1
		change.Outcome = StreakReset
	}

	s.LastActivityDate = day
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	return s, change
}

// ActiveOn returns the streak length as seen on today: the stored current
// value while the streak is still alive (last activity today or yesterday),
// zero once a day has been missed.
func (s Streak) ActiveOn(today shared.Date) int {
	if s.LastActivityDate.IsZero() {
		return 0
	}
	if diff := s.LastActivityDate.DaysUntil(today); diff > 1 {
		return 0
	}
	return s.Current
}
