package config

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// FeatureFlags manages feature toggles with percentage rollout.
// Users are bucketed by a stable hash of their id, so a user keeps the same
// answer for a flag across requests and restarts.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// Campus
	FeatureCampusJoinReward    = "campus.join_reward"    // XP for joining a location
	FeatureCampusPresenceSweep = "campus.presence_sweep" // periodic removal of stale occupants

	// Leaderboard
	FeatureLeaderboardSkillScopes = "leaderboard.skill_scopes" // per-skill rankings

	// Achievements
	FeatureAchievementsSecretListing = "achievements.secret_listing" // ?type=secret reveals hidden entries
	FeatureAchievementsProfileSync   = "achievements.profile_sync"   // re-evaluate on avatar read
)

type featureDefault struct {
	description string
	percent     int
}

var featureDefaults = map[string]featureDefault{
	FeatureCampusJoinReward:          {"Award XP when a user joins a campus location", 100},
	FeatureCampusPresenceSweep:       {"Remove occupants without heartbeats", 100},
	FeatureLeaderboardSkillScopes:    {"Serve per-skill leaderboards", 100},
	FeatureAchievementsSecretListing: {"Allow listing secret achievements on request", 100},
	FeatureAchievementsProfileSync:   {"Re-evaluate achievements when an avatar is read", 100},
}

// NewFeatureFlags returns flags at their defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature, len(featureDefaults)),
		userOverrides: make(map[string]map[string]bool),
	}
	for name, d := range featureDefaults {
		ff.features[name] = &Feature{
			Name:           name,
			Description:    d.description,
			Enabled:        d.percent > 0,
			RolloutPercent: d.percent,
		}
	}
	return ff
}

// LoadFeatureFlags reads overrides from v.
// Keys: features.<name> in the config file, FEATURE_<NAME> in the environment.
// Values: true|false or a rollout percentage.
//
//	FEATURE_CAMPUS_JOIN_REWARD=false
//	FEATURE_ACHIEVEMENTS_PROFILE_SYNC=25
func LoadFeatureFlags(v *viper.Viper) *FeatureFlags {
	ff := NewFeatureFlags()
	if v == nil {
		return ff
	}
	for name, feature := range ff.features {
		key := "features." + name
		_ = v.BindEnv(key, featureNameToEnvKey(name))
		if !v.IsSet(key) {
			continue
		}
		raw := strings.TrimSpace(v.GetString(key))
		if b, err := strconv.ParseBool(raw); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(raw); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
	return ff
}

// featureNameToEnvKey converts feature name to environment variable key.
// "campus.join_reward" -> "FEATURE_CAMPUS_JOIN_REWARD"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on for userID.
// An empty userID asks about the feature globally.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent >= 100 {
		return true
	}
	if userID == "" {
		return feature.RolloutPercent > 0
	}
	return inRollout(userID, featureName, feature.RolloutPercent)
}

func inRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(featureName))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
