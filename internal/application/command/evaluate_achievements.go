package command

import (
	"context"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVALUATOR
// Checks the catalog against the post-event snapshot and grants rewards.
// ══════════════════════════════════════════════════════════════════════════════

// maxEvaluationPasses bounds cascades: reward XP may unlock level achievements,
// which are checked on the next pass.
const maxEvaluationPasses = 4

// RewardApplier grants achievements atomically. XPEngine implements it.
type RewardApplier interface {
	ApplyRewards(ctx context.Context, userID shared.UserID, defs []achievement.Definition) (RewardOutcome, error)
}

// Evaluation is the result of one Evaluate call.
type Evaluation struct {
	// Earned lists achievements actually added by this call.
	Earned []achievement.Definition

	// Avatar is the latest snapshot, or nil when nothing was written.
	Avatar *progress.Avatar
}

// AchievementEvaluator runs catalog predicates and awards matches.
type AchievementEvaluator struct {
	catalog *achievement.Catalog
	rewards RewardApplier
	log     *logger.Logger
}

// NewAchievementEvaluator creates an evaluator.
func NewAchievementEvaluator(catalog *achievement.Catalog, rewards RewardApplier, log *logger.Logger) *AchievementEvaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementEvaluator{
		catalog: catalog,
		rewards: rewards,
		log:     log.Named("achievements"),
	}
}

// Candidates returns the not-yet-earned definitions whose predicate holds
// for snapshot and event. It does not write anything.
func (ev *AchievementEvaluator) Candidates(snapshot *progress.Avatar, event achievement.Event) []achievement.Definition {
	if snapshot == nil {
		return nil
	}
	var out []achievement.Definition
	for _, d := range ev.catalog.All() {
		if snapshot.HasAchievement(d.ID) {
			continue
		}
		if d.Matches(snapshot, event) {
			out = append(out, d)
		}
	}
	return out
}

// Evaluate awards every matching achievement. Calling it again with the same
// snapshot never awards twice: earned ids are skipped here and re-checked
// against the stored record inside ApplyRewards.
func (ev *AchievementEvaluator) Evaluate(ctx context.Context, snapshot *progress.Avatar, event achievement.Event) (Evaluation, error) {
	var result Evaluation
	current := snapshot

	for pass := 0; pass < maxEvaluationPasses; pass++ {
		candidates := ev.Candidates(current, event)
		if len(candidates) == 0 {
			break
		}

		out, err := ev.rewards.ApplyRewards(ctx, current.UserID, candidates)
		if err != nil {
			return result, err
		}
		if out.Avatar != nil {
			current = out.Avatar
			result.Avatar = out.Avatar
		}
		if len(out.Added) == 0 {
			break
		}
		result.Earned = append(result.Earned, out.Added...)
	}

	if len(result.Earned) > 0 {
		ev.log.Debug("achievements evaluated",
			logger.UserID(string(snapshot.UserID)),
			logger.String("trigger", string(event.Type)),
			logger.Int("earned", len(result.Earned)),
		)
	}
	return result, nil
}
