// Package query contains read operations following CQRS pattern.
// Queries never modify progression state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Top-N by overall XP or by skill XP. Order: XP descending, ties by user id
// ascending.
// ══════════════════════════════════════════════════════════════════════════════

// Feature names read by queries. They match the keys in config/feature_flags.go.
const (
	FeatureLeaderboardSkillScopes    = "leaderboard.skill_scopes"
	FeatureAchievementsSecretListing = "achievements.secret_listing"
	FeatureAchievementsProfileSync   = "achievements.profile_sync"
)

// FeatureChecker reports whether a feature is on for a user.
type FeatureChecker interface {
	IsEnabled(featureName, userID string) bool
}

// DefaultLeaderboardLimit is used when the query has no limit.
const DefaultLeaderboardLimit = 10

// ErrSkillScopesDisabled is returned for skill scopes while the flag is off.
var ErrSkillScopesDisabled = shared.NewDomainError("leaderboard", "Top", shared.ErrInvalidInput, "skill leaderboards are disabled")

// GetLeaderboardQuery contains leaderboard request parameters.
type GetLeaderboardQuery struct {
	// Type - "overall" (default) or "skill".
	Type string

	// Skill - skill id when Type is "skill".
	Skill string

	// Limit - number of entries (0 = DefaultLeaderboardLimit).
	Limit int
}

// LeaderboardResult is one page of a scope.
type LeaderboardResult struct {
	Scope   leaderboard.Scope   `json:"scope"`
	Entries []leaderboard.Entry `json:"entries"`
	Total   int64               `json:"total"`
}

// GetRankQuery asks for one user's position.
type GetRankQuery struct {
	UserID string
	Type   string
	Skill  string
}

// GetLeaderboardHandler serves leaderboard reads.
type GetLeaderboardHandler struct {
	index    leaderboard.Index
	features FeatureChecker
	log      *logger.Logger

	maxLimit       int
	storageTimeout time.Duration
}

// GetLeaderboardHandlerConfig contains configuration for the handler.
type GetLeaderboardHandlerConfig struct {
	MaxLimit       int
	StorageTimeout time.Duration
}

// NewGetLeaderboardHandler creates the handler. A nil features checker
// enables everything.
func NewGetLeaderboardHandler(index leaderboard.Index, features FeatureChecker, log *logger.Logger, cfg GetLeaderboardHandlerConfig) *GetLeaderboardHandler {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 3 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{
		index:          index,
		features:       features,
		log:            log.Named("leaderboard_query"),
		maxLimit:       cfg.MaxLimit,
		storageTimeout: cfg.StorageTimeout,
	}
}

// Handle returns the top entries of the requested scope.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardResult, error) {
	scope, err := h.scope(q.Type, q.Skill, "")
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit < 0 {
		return nil, shared.NewDomainError("leaderboard", "Top", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()

	entries, err := h.index.Top(ctx, scope, limit)
	if err != nil {
		return nil, err
	}
	total, err := h.index.Count(ctx, scope)
	if err != nil {
		// Count only feeds pagination; the page is valid without it.
		h.log.Warn("leaderboard count failed", logger.Scope(scope.Key()), logger.Err(err))
		total = int64(len(entries))
	}

	return &LeaderboardResult{Scope: scope, Entries: entries, Total: total}, nil
}

// Rank returns the user's entry in the scope, or shared.ErrNotRanked.
func (h *GetLeaderboardHandler) Rank(ctx context.Context, q GetRankQuery) (leaderboard.Entry, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return leaderboard.Entry{}, err
	}
	scope, err := h.scope(q.Type, q.Skill, string(userID))
	if err != nil {
		return leaderboard.Entry{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()
	return h.index.RankOf(ctx, scope, userID)
}

func (h *GetLeaderboardHandler) scope(kind, skill, userID string) (leaderboard.Scope, error) {
	scope, err := leaderboard.ParseScope(kind, skill)
	if err != nil {
		return leaderboard.Scope{}, err
	}
	if scope.Kind == leaderboard.ScopeSkill && h.features != nil &&
		!h.features.IsEnabled(FeatureLeaderboardSkillScopes, userID) {
		return leaderboard.Scope{}, ErrSkillScopesDisabled
	}
	return scope, nil
}

// IsNotRanked reports whether err means the user has no entry yet.
func IsNotRanked(err error) bool {
	return errors.Is(err, shared.ErrNotRanked)
}
