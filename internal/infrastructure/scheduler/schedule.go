package scheduler

import (
	"fmt"
	"time"
)

// Every runs a job at a fixed interval measured from the previous start.
type Every struct {
	Interval time.Duration
}

// NewEvery creates an interval schedule. Non-positive intervals fall back to one minute.
func NewEvery(interval time.Duration) Every {
	if interval <= 0 {
		interval = time.Minute
	}
	return Every{Interval: interval}
}

// Next returns the next scheduled time.
func (s Every) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s Every) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
