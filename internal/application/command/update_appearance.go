package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE APPEARANCE COMMAND
// Appearance is stored as opaque JSON; only its format and size are checked.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateAppearanceCommand replaces the appearance blob.
type UpdateAppearanceCommand struct {
	UserID     string
	Appearance json.RawMessage
}

// UpdateAppearanceHandler handles UpdateAppearanceCommand.
type UpdateAppearanceHandler struct {
	store          progress.Store
	engine         *XPEngine
	clock          timeutil.Clock
	log            *logger.Logger
	storageTimeout time.Duration
}

// NewUpdateAppearanceHandler creates the handler. engine may be nil, which
// skips achievement evaluation.
func NewUpdateAppearanceHandler(store progress.Store, engine *XPEngine, clock timeutil.Clock, log *logger.Logger, storageTimeout time.Duration) *UpdateAppearanceHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if storageTimeout <= 0 {
		storageTimeout = DefaultXPEngineConfig().StorageTimeout
	}
	return &UpdateAppearanceHandler{
		store:          store,
		engine:         engine,
		clock:          clock,
		log:            log.Named("appearance"),
		storageTimeout: storageTimeout,
	}
}

// Handle stores the new appearance and returns the updated avatar.
func (h *UpdateAppearanceHandler) Handle(ctx context.Context, cmd UpdateAppearanceCommand) (*progress.Avatar, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	now := h.clock.Now().UTC()

	sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	avatar, err := h.store.Update(sctx, userID, func(a *progress.Avatar) error {
		return a.SetAppearance(cmd.Appearance, now)
	})
	cancel()
	if err != nil {
		return nil, err
	}

	h.log.Debug("appearance updated", logger.UserID(string(userID)), logger.Int("bytes", len(cmd.Appearance)))

	if h.engine != nil {
		eval, err := h.engine.Evaluator().Evaluate(ctx, avatar, achievement.Event{Type: achievement.EventProfileSync})
		if err != nil {
			h.log.Warn("achievement evaluation failed", logger.UserID(string(userID)), logger.Err(err))
		} else if eval.Avatar != nil {
			avatar = eval.Avatar
		}
	}
	return avatar, nil
}
