package command

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAMPUS PRESENCE
// Join, leave and heartbeat in campus locations. OccupancyStore enforces
// capacity and one location per user; access checks and events live here.
// ══════════════════════════════════════════════════════════════════════════════

// Leave reasons carried by campus.left events.
const (
	LeaveReasonLeave   = "leave"
	LeaveReasonMoved   = "moved"
	LeaveReasonTimeout = "timeout"
)

// FeatureChecker reports whether a feature is on for a user.
// config.FeatureFlags satisfies it.
type FeatureChecker interface {
	IsEnabled(featureName, userID string) bool
}

// FeatureCampusJoinReward is the flag name gating the join reward.
const FeatureCampusJoinReward = "campus.join_reward"

// JoinLocationCommand asks to place a user in a location.
type JoinLocationCommand struct {
	UserID      string
	LocationID  string
	DisplayName string
}

// JoinResult describes a successful join.
type JoinResult struct {
	Location         campus.Location
	PreviousLocation string
	AlreadyPresent   bool
	Occupancy        int

	// Award is set when the join reward was granted.
	Award *AwardResult
}

// LeaveLocationCommand asks to remove a user from a location.
type LeaveLocationCommand struct {
	UserID     string
	LocationID string
}

// PresenceManagerConfig contains configuration for PresenceManager.
type PresenceManagerConfig struct {
	// JoinXP is granted on a join that changes location. Zero disables it.
	JoinXP int64

	StorageTimeout time.Duration
}

// PresenceManager handles campus joins, leaves, heartbeats and sweeps.
type PresenceManager struct {
	directory *campus.Directory
	occupancy campus.OccupancyStore
	avatars   progress.Store
	engine    *XPEngine
	publisher shared.EventPublisher
	features  FeatureChecker
	clock     timeutil.Clock
	log       *logger.Logger
	metrics   *metrics.Metrics

	joinXP         int64
	storageTimeout time.Duration
}

// NewPresenceManager creates a PresenceManager. engine and features may be
// nil, which disables the join reward.
func NewPresenceManager(
	directory *campus.Directory,
	occupancy campus.OccupancyStore,
	avatars progress.Store,
	engine *XPEngine,
	publisher shared.EventPublisher,
	features FeatureChecker,
	clock timeutil.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg PresenceManagerConfig,
) *PresenceManager {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultXPEngineConfig().StorageTimeout
	}
	return &PresenceManager{
		directory:      directory,
		occupancy:      occupancy,
		avatars:        avatars,
		engine:         engine,
		publisher:      publisher,
		features:       features,
		clock:          clock,
		log:            log.Named("presence"),
		metrics:        m,
		joinXP:         cfg.JoinXP,
		storageTimeout: cfg.StorageTimeout,
	}
}

// Join places the user in the location, moving them out of any other one.
func (p *PresenceManager) Join(ctx context.Context, cmd JoinLocationCommand) (*JoinResult, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	loc, err := p.directory.Get(cmd.LocationID)
	if err != nil {
		p.metrics.ObserveJoin(cmd.LocationID, "not_found")
		return nil, err
	}

	level, err := p.levelOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := loc.Access.Check(userID, level); err != nil {
		p.metrics.ObserveJoin(loc.ID, "denied")
		return nil, err
	}

	now := p.clock.Now().UTC()
	occ := campus.Occupant{
		UserID:      userID,
		DisplayName: cmd.DisplayName,
		LocationID:  loc.ID,
		JoinedAt:    now,
		LastSeenAt:  now,
	}

	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	outcome, err := p.occupancy.Join(sctx, loc, occ)
	cancel()
	if err != nil {
		if errors.Is(err, shared.ErrCapacityExceeded) {
			p.metrics.ObserveJoin(loc.ID, "full")
		}
		return nil, err
	}

	result := &JoinResult{
		Location:         loc,
		PreviousLocation: outcome.PreviousLocation,
		AlreadyPresent:   outcome.AlreadyPresent,
		Occupancy:        outcome.Occupancy,
	}
	if outcome.AlreadyPresent {
		p.metrics.ObserveJoin(loc.ID, "already_present")
		return result, nil
	}
	p.metrics.ObserveJoin(loc.ID, "joined")

	p.log.Info("joined location",
		logger.UserID(string(userID)),
		logger.LocationID(loc.ID),
		logger.String("previous_location", outcome.PreviousLocation),
		logger.Int("occupancy", outcome.Occupancy),
	)
	if outcome.PreviousLocation != "" {
		p.publish(shared.NewCampusLeftEvent(string(userID), outcome.PreviousLocation, LeaveReasonMoved))
	}
	p.publish(shared.NewCampusJoinedEvent(string(userID), loc.ID))

	result.Award = p.rewardJoin(ctx, userID, cmd.DisplayName, loc.ID)
	return result, nil
}

// rewardJoin grants the join XP when enabled, otherwise only evaluates
// campus achievements. Failures are logged: the join is already committed.
func (p *PresenceManager) rewardJoin(ctx context.Context, userID shared.UserID, displayName, locationID string) *AwardResult {
	if p.engine == nil {
		return nil
	}

	if p.joinXP > 0 && p.features != nil && p.features.IsEnabled(FeatureCampusJoinReward, string(userID)) {
		award, err := p.engine.Award(ctx, AwardXPCommand{
			UserID:      string(userID),
			Amount:      p.joinXP,
			Source:      string(progress.SourceCampusActivity),
			DisplayName: displayName,
		})
		if err != nil {
			p.log.Warn("join reward failed", logger.UserID(string(userID)), logger.Err(err))
			return nil
		}
		return award
	}

	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	snapshot, err := p.avatars.GetOrCreate(sctx, userID)
	cancel()
	if err != nil {
		p.log.Warn("campus evaluation skipped", logger.UserID(string(userID)), logger.Err(err))
		return nil
	}
	if _, err := p.engine.Evaluator().Evaluate(ctx, snapshot, achievement.Event{
		Type:       achievement.EventCampusJoin,
		LocationID: locationID,
	}); err != nil {
		p.log.Warn("campus evaluation failed", logger.UserID(string(userID)), logger.Err(err))
	}
	return nil
}

// Leave removes the user from the location. Leaving a location the user does
// not occupy is a no-op and returns false.
func (p *PresenceManager) Leave(ctx context.Context, cmd LeaveLocationCommand) (bool, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return false, err
	}
	if _, err := p.directory.Get(cmd.LocationID); err != nil {
		return false, err
	}

	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	defer cancel()
	left, err := p.occupancy.Leave(sctx, cmd.LocationID, userID)
	if err != nil {
		return false, err
	}
	if left {
		p.log.Info("left location", logger.UserID(string(userID)), logger.LocationID(cmd.LocationID))
		p.publish(shared.NewCampusLeftEvent(string(userID), cmd.LocationID, LeaveReasonLeave))
	}
	return left, nil
}

// Heartbeat refreshes the user's presence. Returns false if the user is not
// in any location.
func (p *PresenceManager) Heartbeat(ctx context.Context, rawUserID string) (bool, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return false, err
	}
	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	defer cancel()
	return p.occupancy.Touch(sctx, userID, p.clock.Now().UTC())
}

// Sweep removes occupants silent for longer than staleAfter and returns how
// many were removed.
func (p *PresenceManager) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	if staleAfter <= 0 {
		return 0, shared.NewDomainError("campus", "Sweep", shared.ErrInvalidInput, "stale threshold must be positive")
	}
	cutoff := p.clock.Now().UTC().Add(-staleAfter)

	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	defer cancel()
	removed, err := p.occupancy.RemoveStale(sctx, cutoff)
	for _, occ := range removed {
		p.publish(shared.NewCampusLeftEvent(string(occ.UserID), occ.LocationID, LeaveReasonTimeout))
	}
	p.metrics.ObserveSweep(len(removed))
	if len(removed) > 0 {
		p.log.Info("stale occupants removed", logger.Int("count", len(removed)), logger.Time("cutoff", cutoff))
	}
	return len(removed), err
}

// levelOf returns the overall level; users without an avatar are level 1.
func (p *PresenceManager) levelOf(ctx context.Context, userID shared.UserID) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, p.storageTimeout)
	defer cancel()

	a, err := p.avatars.Get(sctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return progress.MinLevel, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Level, nil
}

func (p *PresenceManager) publish(event shared.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(event); err != nil {
		p.log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
