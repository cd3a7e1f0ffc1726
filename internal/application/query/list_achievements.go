package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// Listing types accepted in ListAchievementsQuery.Type.
const (
	ListTypeVisible = ""
	ListTypeSecret  = "secret"
	ListTypeAll     = "all"
)

// ListAchievementsQuery filters the catalog.
type ListAchievementsQuery struct {
	// Category limits the listing to one category.
	Category string

	// Type is "" (visible plus earned secrets), "secret" or "all".
	Type string

	// UserID marks earned entries and reveals earned secrets.
	UserID string
}

// AchievementView is one catalog entry with the user's status.
type AchievementView struct {
	Definition achievement.Definition
	Earned     bool
	EarnedAt   *time.Time
}

// ListAchievementsHandler serves catalog listings.
type ListAchievementsHandler struct {
	catalog  *achievement.Catalog
	store    progress.Store
	features FeatureChecker

	storageTimeout time.Duration
}

// NewListAchievementsHandler creates the handler.
func NewListAchievementsHandler(catalog *achievement.Catalog, store progress.Store, features FeatureChecker, storageTimeout time.Duration) *ListAchievementsHandler {
	if catalog == nil {
		catalog = achievement.DefaultCatalog()
	}
	if storageTimeout <= 0 {
		storageTimeout = 3 * time.Second
	}
	return &ListAchievementsHandler{
		catalog:        catalog,
		store:          store,
		features:       features,
		storageTimeout: storageTimeout,
	}
}

// Handle returns matching definitions ordered by category then rarity.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) ([]AchievementView, error) {
	filter := achievement.Filter{}

	if q.Category != "" {
		cat, err := achievement.ParseCategory(q.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = cat
	}

	earned := map[string]time.Time{}
	if q.UserID != "" {
		userID, err := shared.NewUserID(q.UserID)
		if err != nil {
			return nil, err
		}
		earned, err = h.earned(ctx, userID)
		if err != nil {
			return nil, err
		}
		filter.Earned = func(id string) bool {
			_, ok := earned[id]
			return ok
		}
	}

	switch strings.ToLower(strings.TrimSpace(q.Type)) {
	case ListTypeVisible:
	case ListTypeSecret:
		if h.secretListingEnabled(q.UserID) {
			filter.SecretOnly = true
		}
	case ListTypeAll:
		if h.secretListingEnabled(q.UserID) {
			filter.IncludeSecret = true
		}
	default:
		return nil, shared.NewDomainError("achievement", "List", shared.ErrInvalidInput, "type must be empty, secret or all")
	}

	defs := h.catalog.List(filter)
	out := make([]AchievementView, 0, len(defs))
	for _, d := range defs {
		v := AchievementView{Definition: d}
		if at, ok := earned[d.ID]; ok {
			at := at
			v.Earned = true
			v.EarnedAt = &at
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *ListAchievementsHandler) secretListingEnabled(userID string) bool {
	return h.features == nil || h.features.IsEnabled(FeatureAchievementsSecretListing, userID)
}

// earned reads without creating: listing must not materialize avatars.
func (h *ListAchievementsHandler) earned(ctx context.Context, userID shared.UserID) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()

	a, err := h.store.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(a.Achievements))
	for _, e := range a.Achievements {
		out[e.ID] = e.EarnedAt
	}
	return out, nil
}
