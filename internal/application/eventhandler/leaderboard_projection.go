// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
	"github.com/alem-hub/campus-progression/pkg/circuitbreaker"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// LEADERBOARD PROJECTION
// Projects progress.xp_awarded into the leaderboard index.
//
// Delivery is at-least-once and unordered: Upsert never lowers XP, so a
// replayed or late event is harmless. rebuild_leaderboard catches up
// anything lost.
// ═══════════════════════════════════════════════════════════════════════════

// ErrUnexpectedEvent is returned for events of the wrong type.
var ErrUnexpectedEvent = errors.New("unexpected event payload")

// LeaderboardProjectionConfig contains configuration for the projection.
type LeaderboardProjectionConfig struct {
	// Timeout bounds one projection including retries.
	Timeout time.Duration

	// FailureThreshold opens the breaker after this many failed projections.
	FailureThreshold int

	// CoolDown is how long the breaker stays open.
	CoolDown time.Duration
}

// DefaultLeaderboardProjectionConfig returns the default configuration.
func DefaultLeaderboardProjectionConfig() LeaderboardProjectionConfig {
	return LeaderboardProjectionConfig{
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
	}
}

// LeaderboardProjection keeps the leaderboard index in sync with awards.
type LeaderboardProjection struct {
	index   leaderboard.Index
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	timeout time.Duration
}

// NewLeaderboardProjection creates the projection.
func NewLeaderboardProjection(index leaderboard.Index, log *logger.Logger, m *metrics.Metrics, cfg LeaderboardProjectionConfig) *LeaderboardProjection {
	def := DefaultLeaderboardProjectionConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("leaderboard_projection")

	breaker := circuitbreaker.New("leaderboard_index",
		circuitbreaker.WithFailureThreshold(cfg.FailureThreshold),
		circuitbreaker.WithCoolDown(cfg.CoolDown),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			m.SetBreakerState(name, int(to))
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)

	return &LeaderboardProjection{
		index:   index,
		retrier: retry.ProjectionRetrier(),
		breaker: breaker,
		log:     log,
		timeout: cfg.Timeout,
	}
}

// Register subscribes the projection to the bus.
func (p *LeaderboardProjection) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventXPAwarded, p.Handle)
}

// Handle projects one progress.xp_awarded event.
func (p *LeaderboardProjection) Handle(event shared.Event) error {
	standing, err := standingFromEvent(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.index.Upsert(ctx, standing)
		})
	})
	if err != nil {
		p.log.Warn("leaderboard projection failed",
			logger.UserID(string(standing.UserID)),
			logger.Int64("total_xp", standing.TotalXP),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// Breaker exposes the breaker for readiness checks.
func (p *LeaderboardProjection) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}

func standingFromEvent(event shared.Event) (leaderboard.Standing, error) {
	var e shared.XPAwardedEvent
	switch v := event.(type) {
	case shared.XPAwardedEvent:
		e = v
	case *shared.XPAwardedEvent:
		e = *v
	default:
		return leaderboard.Standing{}, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	skills := make(map[progress.Skill]int64, len(e.SkillXP))
	for id, xp := range e.SkillXP {
		skills[progress.Skill(id)] = xp
	}
	return leaderboard.Standing{
		UserID:      shared.UserID(e.AggregateID()),
		DisplayName: e.DisplayName,
		TotalXP:     e.TotalXP,
		Level:       e.Level,
		SkillXP:     skills,
	}, nil
}
