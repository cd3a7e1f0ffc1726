package progress

import (
	"strings"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// Skill identifies a subject with its own XP sub-ledger and leaderboard.
type Skill string

// Skill set. Extending it only requires a new constant here and an entry in
// allSkills; the engine and leaderboard pick it up automatically.
const (
	SkillMathematics Skill = "mathematics"
	SkillScience     Skill = "science"
	SkillCoding      Skill = "coding"
	SkillLanguages   Skill = "languages"
	SkillHistory     Skill = "history"
	SkillLiterature  Skill = "literature"
	SkillArts        Skill = "arts"
	SkillMusic       Skill = "music"
)

var allSkills = []Skill{
	SkillMathematics,
	SkillScience,
	SkillCoding,
	SkillLanguages,
	SkillHistory,
	SkillLiterature,
	SkillArts,
	SkillMusic,
}

// AllSkills returns the skill set in display order.
func AllSkills() []Skill {
	out := make([]Skill, len(allSkills))
	copy(out, allSkills)
	return out
}

// IsValid reports whether s belongs to the skill set.
func (s Skill) IsValid() bool {
	for _, known := range allSkills {
		if s == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (s Skill) String() string {
	return string(s)
}

// ParseSkill validates a skill id coming from a collaborator.
// An empty string yields the empty Skill (no skill attribution).
func ParseSkill(value string) (Skill, error) {
	v := Skill(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return "", nil
	}
	if !v.IsValid() {
		return "", shared.WrapError("progress", "ParseSkill", shared.ErrUnknownSkill,
			"skill is not part of the skill set", shared.ErrSkillNotRecognized)
	}
	return v, nil
}

// Source identifies what kind of activity produced an XP grant.
type Source string

const (
	SourceStudySession      Source = "study_session"
	SourceTaskCompleted     Source = "task_completed"
	SourceQuiz              Source = "quiz"
	SourceCustomization     Source = "customization"
	SourceCampusActivity    Source = "campus_activity"
	SourceAchievementReward Source = "achievement_reward"
	SourceManual            Source = "manual"
)

var allSources = []Source{
	SourceStudySession,
	SourceTaskCompleted,
	SourceQuiz,
	SourceCustomization,
	SourceCampusActivity,
	SourceAchievementReward,
	SourceManual,
}

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	for _, known := range allSources {
		if s == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// ParseSource validates a source. Empty means SourceManual.
func ParseSource(value string) (Source, error) {
	v := Source(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return SourceManual, nil
	}
	if !v.IsValid() {
		return "", shared.NewDomainError("progress", "ParseSource", shared.ErrInvalidInput, "unknown activity source")
	}
	return v, nil
}
