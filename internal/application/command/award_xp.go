// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// The only place XP, levels and streaks change. Achievements are evaluated
// after the write commits, then events are published.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data of one XP award.
type AwardXPCommand struct {
	// UserID is the opaque id of the receiving user.
	UserID string

	// Amount must be in (0, progress.MaxAwardAmount].
	Amount int64

	// Skill is optional; when set the skill sub-ledger grows too.
	Skill string

	// Source classifies the award. Unknown or empty values become "manual".
	Source string

	// DisplayName updates the stored name when non-empty.
	DisplayName string

	// ActivityDate overrides the streak day. Zero means today in the
	// configured timezone.
	ActivityDate shared.Date
}

type validatedAward struct {
	userID shared.UserID
	amount int64
	skill  progress.Skill
	source progress.Source
}

// validate parses the command. Skill errors are returned, source errors are not.
func (c AwardXPCommand) validate() (validatedAward, error) {
	userID, err := shared.NewUserID(c.UserID)
	if err != nil {
		return validatedAward{}, err
	}
	if c.Amount <= 0 {
		return validatedAward{}, shared.ErrAmountNotPositive
	}
	if c.Amount > progress.MaxAwardAmount {
		return validatedAward{}, shared.ErrAmountTooLarge
	}
	skill, err := progress.ParseSkill(c.Skill)
	if err != nil {
		return validatedAward{}, err
	}
	source, err := progress.ParseSource(c.Source)
	if err != nil {
		source = progress.SourceManual
	}
	return validatedAward{userID: userID, amount: c.Amount, skill: skill, source: source}, nil
}

// AwardResult is returned after a committed award.
type AwardResult struct {
	// Avatar is the state after the award and any achievement rewards.
	Avatar *progress.Avatar

	// Amount is the XP granted by the award itself, without rewards.
	Amount int64

	LeveledUp     bool
	PreviousLevel int
	NewLevel      int

	// SkillLeveledUp is true when the awarded skill crossed a level.
	SkillLeveledUp bool
	SkillLevel     int

	// Streak is the transition applied to the daily streak.
	Streak progress.StreakChange

	// NewAchievements lists achievements earned as a consequence of this award.
	NewAchievements []achievement.Definition
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// XPEngineConfig contains configuration for the engine.
type XPEngineConfig struct {
	// StorageTimeout bounds every store call.
	StorageTimeout time.Duration
}

// DefaultXPEngineConfig returns default configuration.
func DefaultXPEngineConfig() XPEngineConfig {
	return XPEngineConfig{StorageTimeout: 3 * time.Second}
}

// XPEngine awards XP and grants achievement rewards.
type XPEngine struct {
	store     progress.Store
	catalog   *achievement.Catalog
	evaluator *AchievementEvaluator
	publisher shared.EventPublisher
	calendar  *timeutil.Calendar
	log       *logger.Logger
	metrics   *metrics.Metrics

	storageTimeout time.Duration
}

// NewXPEngine creates the engine together with its achievement evaluator.
func NewXPEngine(
	store progress.Store,
	catalog *achievement.Catalog,
	publisher shared.EventPublisher,
	calendar *timeutil.Calendar,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg XPEngineConfig,
) *XPEngine {
	if cfg.StorageTimeout <= 0 {
		cfg = DefaultXPEngineConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	if calendar == nil {
		calendar = timeutil.NewCalendar(nil, nil)
	}
	if catalog == nil {
		catalog = achievement.DefaultCatalog()
	}

	e := &XPEngine{
		store:          store,
		catalog:        catalog,
		publisher:      publisher,
		calendar:       calendar,
		log:            log.Named("xp_engine"),
		metrics:        m,
		storageTimeout: cfg.StorageTimeout,
	}
	e.evaluator = NewAchievementEvaluator(catalog, e, log)
	return e
}

// Evaluator returns the evaluator bound to this engine.
func (e *XPEngine) Evaluator() *AchievementEvaluator {
	return e.evaluator
}

// Award applies one XP award atomically and runs its side effects.
func (e *XPEngine) Award(ctx context.Context, cmd AwardXPCommand) (*AwardResult, error) {
	in, err := cmd.validate()
	if err != nil {
		return nil, err
	}

	day := cmd.ActivityDate
	if day.IsZero() {
		day = e.calendar.Today()
	}
	now := e.calendar.Now()

	var (
		prevLevel      int
		prevSkillLevel int
		streak         progress.StreakChange
	)

	avatar, err := e.update(ctx, in.userID, func(a *progress.Avatar) error {
		prevLevel = a.Level
		prevSkillLevel = a.SkillLevel(in.skill)

		a.SetDisplayName(cmd.DisplayName)
		if _, err := a.GrantXP(in.amount, in.skill, in.source, now); err != nil {
			return err
		}
		streak = a.RecordActivity(day)
		return nil
	})
	if err != nil {
		e.log.Warn("award failed",
			logger.UserID(string(in.userID)),
			logger.XPAmount(in.amount),
			logger.Err(err),
		)
		return nil, err
	}

	// An evaluation failure does not roll back the award.
	eval, evalErr := e.evaluator.Evaluate(ctx, avatar, achievement.Event{
		Type:   achievement.EventXPAward,
		Amount: in.amount,
		Skill:  in.skill,
		Source: in.source,
		Day:    day,
		Streak: streak,
	})
	if evalErr != nil {
		e.log.Error("achievement evaluation failed",
			logger.UserID(string(in.userID)),
			logger.Err(evalErr),
		)
	}

	final := avatar
	if eval.Avatar != nil {
		final = eval.Avatar
	}

	result := &AwardResult{
		Avatar:          final,
		Amount:          in.amount,
		PreviousLevel:   prevLevel,
		NewLevel:        final.Level,
		LeveledUp:       final.Level > prevLevel,
		Streak:          streak,
		NewAchievements: eval.Earned,
	}
	if in.skill != "" {
		result.SkillLevel = final.SkillLevel(in.skill)
		result.SkillLeveledUp = result.SkillLevel > prevSkillLevel
	}

	e.metrics.ObserveAward(string(in.source), string(in.skill), in.amount, result.LeveledUp)

	e.log.Info("xp awarded",
		logger.UserID(string(in.userID)),
		logger.XPAmount(in.amount),
		logger.Skill(string(in.skill)),
		logger.Source(string(in.source)),
		logger.Int64("total_xp", final.TotalXP),
		logger.Int("level", final.Level),
	)

	e.publishAward(final, in.amount, in.skill, in.source)
	if result.LeveledUp {
		e.publish(shared.NewLevelUpEvent(string(in.userID), prevLevel, final.Level))
	}
	if streak.Outcome == progress.StreakReset && streak.PreviousCurrent > 1 {
		e.publish(shared.NewStreakResetEvent(string(in.userID), streak.PreviousCurrent, streak.DaysSinceLast-1))
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// RewardOutcome is the result of ApplyRewards.
type RewardOutcome struct {
	Added  []achievement.Definition
	Avatar *progress.Avatar
}

// ApplyRewards records defs as earned and grants their rewards in one
// atomic update. Definitions the fresh record already holds are skipped,
// so concurrent evaluations cannot grant the same achievement twice.
// No evaluation runs here.
func (e *XPEngine) ApplyRewards(ctx context.Context, userID shared.UserID, defs []achievement.Definition) (RewardOutcome, error) {
	if len(defs) == 0 {
		return RewardOutcome{}, nil
	}
	now := e.calendar.Now()

	var added []achievement.Definition
	avatar, err := e.update(ctx, userID, func(a *progress.Avatar) error {
		// fn may run more than once; rebuild the result each time.
		added = added[:0]
		for _, d := range defs {
			if !a.EarnAchievement(d.ID, now) {
				continue
			}
			if d.Rewards.XP > 0 {
				if _, err := a.GrantXP(d.Rewards.XP, "", progress.SourceAchievementReward, now); err != nil {
					return err
				}
			}
			if err := a.AddCurrency(d.Rewards.Coins, d.Rewards.Gems); err != nil {
				return err
			}
			a.AddTitle(d.Rewards.Title)
			added = append(added, d)
		}
		if len(added) == 0 {
			return progress.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return RewardOutcome{}, err
	}
	if len(added) == 0 {
		return RewardOutcome{Avatar: avatar}, nil
	}

	var rewardXP int64
	for _, d := range added {
		rewardXP += d.Rewards.XP
		e.metrics.ObserveAchievement(string(d.Rarity))
		e.log.Info("achievement unlocked",
			logger.UserID(string(userID)),
			logger.AchievementID(d.ID),
			logger.String("rarity", string(d.Rarity)),
		)
		e.publish(shared.NewAchievementUnlockedEvent(string(userID), d.ID, string(d.Rarity)))
	}
	if rewardXP > 0 {
		e.metrics.ObserveAward(string(progress.SourceAchievementReward), "", rewardXP, false)
		e.publishAward(avatar, rewardXP, "", progress.SourceAchievementReward)
	}

	return RewardOutcome{Added: added, Avatar: avatar}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (e *XPEngine) update(ctx context.Context, userID shared.UserID, fn progress.MutateFunc) (*progress.Avatar, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()
	return e.store.Update(ctx, userID, fn)
}

func (e *XPEngine) publishAward(a *progress.Avatar, amount int64, skill progress.Skill, source progress.Source) {
	e.publish(shared.NewXPAwardedEvent(
		string(a.UserID),
		a.DisplayName,
		amount,
		string(skill),
		string(source),
		a.TotalXP,
		a.Level,
		a.SkillXPMap(),
	))
}

func (e *XPEngine) publish(event shared.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(event); err != nil {
		e.log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
