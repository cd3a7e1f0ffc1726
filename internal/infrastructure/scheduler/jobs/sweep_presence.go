package jobs

import (
	"context"
	"time"

	"github.com/alem-hub/campus-progression/pkg/logger"
)

// PresenceSweeper removes inactive occupants. Implemented by the presence
// manager in the application layer.
type PresenceSweeper interface {
	Sweep(ctx context.Context, staleAfter time.Duration) (int, error)
}

// SweepPresenceJob evicts campus occupants without a recent heartbeat.
type SweepPresenceJob struct {
	sweeper    PresenceSweeper
	staleAfter time.Duration
	enabled    func() bool
	log        *logger.Logger
}

// NewSweepPresenceJob creates the job. enabled is consulted on every run and
// may be nil.
func NewSweepPresenceJob(sweeper PresenceSweeper, staleAfter time.Duration, enabled func() bool, log *logger.Logger) *SweepPresenceJob {
	if log == nil {
		log = logger.Nop()
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &SweepPresenceJob{
		sweeper:    sweeper,
		staleAfter: staleAfter,
		enabled:    enabled,
		log:        log.Named("sweep_campus_presence"),
	}
}

// Name returns the job name.
func (j *SweepPresenceJob) Name() string {
	return "sweep_campus_presence"
}

// Description returns a human-readable description.
func (j *SweepPresenceJob) Description() string {
	return "Removes campus occupants whose last heartbeat is older than the staleness threshold"
}

// Run executes one sweep.
func (j *SweepPresenceJob) Run(ctx context.Context) error {
	if j.enabled != nil && !j.enabled() {
		j.log.Debug("presence sweep disabled by feature flag")
		return nil
	}
	removed, err := j.sweeper.Sweep(ctx, j.staleAfter)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.log.Info("stale occupants removed", logger.Int("removed", removed))
	}
	return nil
}
