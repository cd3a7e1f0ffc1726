package config

import (
	"fmt"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := NewFeatureFlags()
	all := ff.GetAllFeatures()

	for _, name := range []string{
		FeatureCampusJoinReward,
		FeatureCampusPresenceSweep,
		FeatureLeaderboardSkillScopes,
		FeatureAchievementsSecretListing,
		FeatureAchievementsProfileSync,
	} {
		require.Contains(t, all, name)
		assert.True(t, ff.IsEnabled(name, "anyone"), name)
	}
	assert.False(t, ff.IsEnabled("unknown.flag", "anyone"))

	var nilFlags *FeatureFlags
	assert.False(t, nilFlags.IsEnabled(FeatureCampusJoinReward, "u1"))
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureAchievementsProfileSync, 30))

	enabled := 0
	for i := 0; i < 1000; i++ {
		user := fmt.Sprintf("student-%d", i)
		first := ff.IsEnabled(FeatureAchievementsProfileSync, user)
		assert.Equal(t, first, ff.IsEnabled(FeatureAchievementsProfileSync, user))
		if first {
			enabled++
		}
	}
	assert.InDelta(t, 300, enabled, 100)
	assert.True(t, ff.IsEnabled(FeatureAchievementsProfileSync, ""), "partial rollout is on globally")
}

func TestFeatureFlags_OverridesAndToggles(t *testing.T) {
	ff := NewFeatureFlags()

	require.NoError(t, ff.DisableFeature(FeatureCampusJoinReward))
	assert.False(t, ff.IsEnabled(FeatureCampusJoinReward, "u1"))

	ff.SetUserOverride("u1", FeatureCampusJoinReward, true)
	assert.True(t, ff.IsEnabled(FeatureCampusJoinReward, "u1"))
	assert.False(t, ff.IsEnabled(FeatureCampusJoinReward, "u2"))

	require.NoError(t, ff.EnableFeature(FeatureCampusJoinReward))
	assert.True(t, ff.IsEnabled(FeatureCampusJoinReward, "u2"))

	assert.ErrorIs(t, ff.SetRolloutPercent("missing", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureCampusJoinReward, 101), ErrInvalidRolloutPercent)
}

func TestLoadFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_ACHIEVEMENTS_SECRET_LISTING", "0")
	t.Setenv("FEATURE_CAMPUS_PRESENCE_SWEEP", "40")
	t.Setenv("FEATURE_LEADERBOARD_SKILL_SCOPES", "sometimes")

	ff := LoadFeatureFlags(viper.New())
	all := ff.GetAllFeatures()
	assert.False(t, all[FeatureAchievementsSecretListing].Enabled)
	assert.Equal(t, 40, all[FeatureCampusPresenceSweep].RolloutPercent)
	assert.Equal(t, 100, all[FeatureLeaderboardSkillScopes].RolloutPercent, "unparsable values are ignored")

	assert.NotNil(t, LoadFeatureFlags(nil))
	assert.Equal(t, "FEATURE_CAMPUS_JOIN_REWARD", featureNameToEnvKey(FeatureCampusJoinReward))
}
