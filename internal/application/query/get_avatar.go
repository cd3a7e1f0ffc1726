package query

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET AVATAR QUERY
// The avatar is created lazily on first read. With achievements.profile_sync
// enabled every read re-evaluates achievements, which catches up rewards
// lost to a failure after an award.
// ══════════════════════════════════════════════════════════════════════════════

// AvatarView is the full avatar projection.
type AvatarView struct {
	Avatar   *progress.Avatar
	Progress progress.LevelProgress

	// ActiveStreak is the streak as seen today: zero once a day was missed.
	ActiveStreak int

	// Earned are the definitions of the avatar's achievements, in earn order.
	Earned []achievement.Definition
}

// GetAvatarHandler serves avatar reads.
type GetAvatarHandler struct {
	store     progress.Store
	evaluator *command.AchievementEvaluator
	catalog   *achievement.Catalog
	features  FeatureChecker
	calendar  *timeutil.Calendar
	log       *logger.Logger

	group          singleflight.Group
	storageTimeout time.Duration
}

// NewGetAvatarHandler creates the handler. A nil evaluator disables
// re-evaluation on read.
func NewGetAvatarHandler(
	store progress.Store,
	evaluator *command.AchievementEvaluator,
	catalog *achievement.Catalog,
	features FeatureChecker,
	calendar *timeutil.Calendar,
	log *logger.Logger,
	storageTimeout time.Duration,
) *GetAvatarHandler {
	if catalog == nil {
		catalog = achievement.DefaultCatalog()
	}
	if calendar == nil {
		calendar = timeutil.NewCalendar(nil, nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	if storageTimeout <= 0 {
		storageTimeout = 3 * time.Second
	}
	return &GetAvatarHandler{
		store:          store,
		evaluator:      evaluator,
		catalog:        catalog,
		features:       features,
		calendar:       calendar,
		log:            log.Named("avatar_query"),
		storageTimeout: storageTimeout,
	}
}

// Handle returns the avatar, creating it on first access. Concurrent reads
// of the same user share one store round trip; a caller that gives up only
// abandons its own wait.
func (h *GetAvatarHandler) Handle(ctx context.Context, rawUserID string) (*AvatarView, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}

	// The shared load outlives any single caller; each caller waits only
	// until its own ctx is done.
	ch := h.group.DoChan(string(userID), func() (interface{}, error) {
		return h.load(context.WithoutCancel(ctx), userID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, shared.StorageError("progress", "GetAvatar", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// Each caller gets its own copy.
	avatar := res.Val.(*progress.Avatar).Clone()

	return &AvatarView{
		Avatar:       avatar,
		Progress:     avatar.LevelProgress(),
		ActiveStreak: avatar.Streak.ActiveOn(h.calendar.Today()),
		Earned:       h.earned(avatar),
	}, nil
}

func (h *GetAvatarHandler) load(ctx context.Context, userID shared.UserID) (*progress.Avatar, error) {
	sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	avatar, err := h.store.GetOrCreate(sctx, userID)
	cancel()
	if err != nil {
		return nil, err
	}

	if h.evaluator == nil || (h.features != nil && !h.features.IsEnabled(FeatureAchievementsProfileSync, string(userID))) {
		return avatar, nil
	}

	eval, err := h.evaluator.Evaluate(ctx, avatar, achievement.Event{
		Type: achievement.EventProfileSync,
		Day:  h.calendar.Today(),
	})
	if err != nil {
		h.log.Warn("profile sync evaluation failed", logger.UserID(string(userID)), logger.Err(err))
		return avatar, nil
	}
	if eval.Avatar != nil {
		return eval.Avatar, nil
	}
	return avatar, nil
}

func (h *GetAvatarHandler) earned(a *progress.Avatar) []achievement.Definition {
	out := make([]achievement.Definition, 0, len(a.Achievements))
	for _, e := range a.Achievements {
		if d, ok := h.catalog.Get(e.ID); ok {
			out = append(out, d)
		}
	}
	return out
}
