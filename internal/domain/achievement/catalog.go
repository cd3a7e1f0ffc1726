package achievement

import (
	"fmt"
	"sort"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
)

// Achievement ids of the default catalog.
const (
	IDFirstSteps       = "first_steps"
	IDRisingStar       = "level_5"
	IDScholar          = "level_10"
	IDSage             = "level_25"
	IDLuminary         = "level_50"
	IDWeekWarrior      = "week_warrior"
	IDFortnightFocus   = "fortnight_focus"
	IDMonthMaster      = "month_master"
	IDFreshStart       = "fresh_start"
	IDDedicatedScholar = "dedicated_scholar"
	IDTaskCrusher      = "task_crusher"
	IDQuizWhiz         = "quiz_whiz"
	IDMathWhiz         = "math_whiz"
	IDCodeNinja        = "code_ninja"
	IDScienceAce       = "science_ace"
	IDPolymath         = "polymath"
	IDCampusExplorer   = "campus_explorer"
	IDCampusRegular    = "campus_regular"
	IDStyleIcon        = "style_icon"
	IDMarathon         = "marathon"
	IDComebackKid      = "comeback_kid"
	IDCollector        = "collector"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is the immutable set of definitions loaded at startup.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog validates and indexes definitions. Order is preserved and is the
// evaluation order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("achievement: definition without id")
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("achievement: duplicate id %q", d.ID)
		}
		if !d.Category.IsValid() {
			return nil, fmt.Errorf("achievement: %q has unknown category %q", d.ID, d.Category)
		}
		if !d.Rarity.IsValid() {
			return nil, fmt.Errorf("achievement: %q has unknown rarity %q", d.ID, d.Rarity)
		}
		if d.Predicate == nil {
			return nil, fmt.Errorf("achievement: %q has no predicate", d.ID)
		}
		if d.Rewards.XP < 0 || d.Rewards.Coins < 0 || d.Rewards.Gems < 0 {
			return nil, fmt.Errorf("achievement: %q has negative rewards", d.ID)
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on invalid definitions.
func MustCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns every definition in evaluation order.
func (c *Catalog) All() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Get looks a definition up by id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Filter selects definitions for listing.
type Filter struct {
	// Category limits results to one category when set.
	Category Category

	// SecretOnly lists only secret definitions (explicit secret request).
	SecretOnly bool

	// IncludeSecret lists secret definitions alongside visible ones.
	IncludeSecret bool

	// Earned reveals secret definitions the user already has.
	Earned func(id string) bool
}

// List returns definitions matching f, ordered by category then rarity.
// Secret definitions are hidden unless earned or explicitly requested.
func (c *Catalog) List(f Filter) []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		earned := f.Earned != nil && f.Earned(d.ID)
		switch {
		case f.SecretOnly:
			if !d.Secret {
				continue
			}
		case d.Secret && !f.IncludeSecret && !earned:
			continue
		}
		out = append(out, d)
	}

	order := make(map[Category]int, len(allCategories))
	for i, cat := range allCategories {
		order[cat] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return order[out[i].Category] < order[out[j].Category]
		}
		return out[i].Rarity.Weight() < out[j].Rarity.Weight()
	})
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCatalog returns the built-in achievement set.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultDefinitions()...)
}

// DefaultDefinitions returns the built-in definitions. New achievements are
// added here without touching engine code.
func DefaultDefinitions() []Definition {
	return []Definition{
		// ─────────────────────────────────────────────────────────────────────
		// Progression
		// ─────────────────────────────────────────────────────────────────────
		{
			ID: IDFirstSteps, Name: "First Steps", Icon: "👣",
			Description: "Earn your first XP",
			Category:    CategoryProgression, Rarity: RarityCommon,
			Predicate: func(a *progress.Avatar, _ Event) bool { return a.TotalXP > 0 },
			Rewards:   Rewards{Coins: 10},
		},
		levelDefinition(IDRisingStar, "Rising Star", "🌟", 5, RarityCommon, Rewards{XP: 50, Coins: 25}),
		levelDefinition(IDScholar, "Scholar", "🎓", 10, RarityUncommon, Rewards{XP: 100, Coins: 50, Title: "Scholar"}),
		levelDefinition(IDSage, "Sage", "🦉", 25, RarityEpic, Rewards{Gems: 10, Title: "Sage"}),
		levelDefinition(IDLuminary, "Luminary", "💡", 50, RarityLegendary, Rewards{Gems: 50, Title: "Luminary"}),

		// ─────────────────────────────────────────────────────────────────────
		// Streaks
		// ─────────────────────────────────────────────────────────────────────
		streakDefinition(IDWeekWarrior, "Week Warrior", "🔥", 7, RarityUncommon, Rewards{XP: 70, Coins: 30}),
		streakDefinition(IDFortnightFocus, "Fortnight Focus", "📆", 14, RarityRare, Rewards{XP: 150, Gems: 2}),
		streakDefinition(IDMonthMaster, "Month Master", "🏆", 30, RarityEpic, Rewards{Gems: 15, Title: "Unstoppable"}),

		// ─────────────────────────────────────────────────────────────────────
		// Dedication
		// ─────────────────────────────────────────────────────────────────────
		{
			ID: IDFreshStart, Name: "Fresh Start", Icon: "☀️",
			Description: "Open a new day with a study session",
			Category:    CategoryDedication, Rarity: RarityCommon,
			Predicate: func(_ *progress.Avatar, e Event) bool {
				return e.Type == EventXPAward && e.Source == progress.SourceStudySession && e.Streak.FirstActivityOfDay()
			},
			Rewards: Rewards{Coins: 5},
		},
		sourceDefinition(IDDedicatedScholar, "Dedicated Scholar", "📚", progress.SourceStudySession, 25, RarityRare, Rewards{XP: 200}),
		sourceDefinition(IDTaskCrusher, "Task Crusher", "✅", progress.SourceTaskCompleted, 50, RarityUncommon, Rewards{Coins: 100}),
		sourceDefinition(IDQuizWhiz, "Quiz Whiz", "❓", progress.SourceQuiz, 20, RarityUncommon, Rewards{Coins: 60}),

		// ─────────────────────────────────────────────────────────────────────
		// Skills
		// ─────────────────────────────────────────────────────────────────────
		skillDefinition(IDMathWhiz, "Math Whiz", "➗", progress.SkillMathematics, 5, Rewards{XP: 100, Coins: 40}),
		skillDefinition(IDCodeNinja, "Code Ninja", "💻", progress.SkillCoding, 5, Rewards{XP: 100, Coins: 40}),
		skillDefinition(IDScienceAce, "Science Ace", "🔬", progress.SkillScience, 5, Rewards{XP: 100, Coins: 40}),
		{
			ID: IDPolymath, Name: "Polymath", Icon: "🧠",
			Description: "Reach level 3 in four different skills",
			Category:    CategorySkill, Rarity: RarityEpic,
			Predicate: func(a *progress.Avatar, _ Event) bool { return a.SkillsAtLevel(3) >= 4 },
			Rewards:   Rewards{Gems: 5, Title: "Polymath"},
		},

		// ─────────────────────────────────────────────────────────────────────
		// Campus
		// ─────────────────────────────────────────────────────────────────────
		{
			ID: IDCampusExplorer, Name: "Campus Explorer", Icon: "🗺️",
			Description: "Join a campus location",
			Category:    CategoryCampus, Rarity: RarityCommon,
			Predicate: func(a *progress.Avatar, e Event) bool {
				return e.Type == EventCampusJoin || a.SourceCounts[progress.SourceCampusActivity] > 0
			},
			Rewards: Rewards{Coins: 15},
		},
		sourceDefinition(IDCampusRegular, "Campus Regular", "🏫", progress.SourceCampusActivity, 10, RarityUncommon, Rewards{Coins: 50}),

		// ─────────────────────────────────────────────────────────────────────
		// Special (secret ones hidden until earned)
		// ─────────────────────────────────────────────────────────────────────
		sourceDefinition(IDStyleIcon, "Style Icon", "🎨", progress.SourceCustomization, 1, RarityCommon, Rewards{Coins: 20}),
		{
			ID: IDMarathon, Name: "Marathon", Icon: "🏃",
			Description: "Earn 500 XP in a single award",
			Category:    CategorySpecial, Rarity: RarityRare, Secret: true,
			Predicate: func(_ *progress.Avatar, e Event) bool {
				return e.Type == EventXPAward && e.Amount >= 500
			},
			Rewards: Rewards{Gems: 3},
		},
		{
			ID: IDComebackKid, Name: "Comeback Kid", Icon: "🔄",
			Description: "Return after a week or more away",
			Category:    CategorySpecial, Rarity: RarityUncommon, Secret: true,
			Predicate: func(_ *progress.Avatar, e Event) bool {
				return e.Streak.Outcome == progress.StreakReset && e.Streak.DaysSinceLast >= 7
			},
			Rewards: Rewards{XP: 25, Coins: 25},
		},
		{
			ID: IDCollector, Name: "Collector", Icon: "💎",
			Description: "Earn fifteen achievements",
			Category:    CategorySpecial, Rarity: RarityLegendary, Secret: true,
			Predicate: func(a *progress.Avatar, _ Event) bool { return len(a.Achievements) >= 15 },
			Rewards:   Rewards{Gems: 25, Title: "Collector"},
		},
	}
}

func levelDefinition(id, name, icon string, level int, rarity Rarity, rewards Rewards) Definition {
	return Definition{
		ID: id, Name: name, Icon: icon,
		Description: fmt.Sprintf("Reach level %d", level),
		Category:    CategoryProgression, Rarity: rarity,
		Predicate: func(a *progress.Avatar, _ Event) bool {
			return progress.LevelFor(a.TotalXP) >= level
		},
		Rewards: rewards,
	}
}

func streakDefinition(id, name, icon string, days int, rarity Rarity, rewards Rewards) Definition {
	return Definition{
		ID: id, Name: name, Icon: icon,
		Description: fmt.Sprintf("Study %d days in a row", days),
		Category:    CategoryStreak, Rarity: rarity,
		Predicate: func(a *progress.Avatar, _ Event) bool {
			return a.Streak.Current >= days
		},
		Rewards: rewards,
	}
}

func sourceDefinition(id, name, icon string, source progress.Source, count int64, rarity Rarity, rewards Rewards) Definition {
	category := CategoryDedication
	switch source {
	case progress.SourceCampusActivity:
		category = CategoryCampus
	case progress.SourceCustomization:
		category = CategorySpecial
	}
	return Definition{
		ID: id, Name: name, Icon: icon,
		Description: fmt.Sprintf("Record %d %s activities", count, source),
		Category:    category, Rarity: rarity,
		Predicate: func(a *progress.Avatar, _ Event) bool {
			return a.SourceCounts[source] >= count
		},
		Rewards: rewards,
	}
}

func skillDefinition(id, name, icon string, skill progress.Skill, level int, rewards Rewards) Definition {
	return Definition{
		ID: id, Name: name, Icon: icon,
		Description: fmt.Sprintf("Reach level %d in %s", level, skill),
		Category:    CategorySkill, Rarity: RarityRare,
		Predicate: func(a *progress.Avatar, _ Event) bool {
			return a.SkillLevel(skill) >= level
		},
		Rewards: rewards,
	}
}
