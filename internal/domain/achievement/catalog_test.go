package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

func always(*progress.Avatar, Event) bool { return true }

func TestNewCatalog_Validation(t *testing.T) {
	ok := Definition{ID: "a", Category: CategorySpecial, Rarity: RarityCommon, Predicate: always}

	_, err := NewCatalog(ok, ok)
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewCatalog(Definition{Category: CategorySpecial, Rarity: RarityCommon, Predicate: always})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{ID: "b", Category: "nope", Rarity: RarityCommon, Predicate: always})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{ID: "b", Category: CategorySpecial, Rarity: "mythic", Predicate: always})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{ID: "b", Category: CategorySpecial, Rarity: RarityCommon})
	assert.Error(t, err)

	_, err = NewCatalog(Definition{ID: "b", Category: CategorySpecial, Rarity: RarityCommon, Predicate: always,
		Rewards: Rewards{Coins: -1}})
	assert.Error(t, err)

	c, err := NewCatalog(ok)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestDefaultCatalog_IsValid(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, len(DefaultDefinitions()), c.Len())

	d, ok := c.Get(IDWeekWarrior)
	require.True(t, ok)
	assert.Equal(t, CategoryStreak, d.Category)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCatalog_ListHidesSecrets(t *testing.T) {
	c := DefaultCatalog()

	for _, d := range c.List(Filter{}) {
		assert.False(t, d.Secret, "secret %s listed", d.ID)
	}

	earned := c.List(Filter{Earned: func(id string) bool { return id == IDMarathon }})
	ids := make([]string, 0, len(earned))
	for _, d := range earned {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, IDMarathon)
	assert.NotContains(t, ids, IDCollector)

	secret := c.List(Filter{SecretOnly: true})
	require.NotEmpty(t, secret)
	for _, d := range secret {
		assert.True(t, d.Secret)
	}

	assert.Equal(t, c.Len(), len(c.List(Filter{IncludeSecret: true})))
}

func TestCatalog_ListOrdersByCategoryThenRarity(t *testing.T) {
	list := DefaultCatalog().List(Filter{IncludeSecret: true})
	order := map[Category]int{}
	for i, cat := range AllCategories() {
		order[cat] = i
	}
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.Category == cur.Category {
			assert.LessOrEqual(t, prev.Rarity.Weight(), cur.Rarity.Weight())
		} else {
			assert.Less(t, order[prev.Category], order[cur.Category])
		}
	}

	for _, d := range DefaultCatalog().List(Filter{Category: CategoryStreak}) {
		assert.Equal(t, CategoryStreak, d.Category)
	}
}

func TestDefaultPredicates(t *testing.T) {
	c := DefaultCatalog()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	a := progress.NewAvatar("u1", now)

	first, _ := c.Get(IDFirstSteps)
	assert.False(t, first.Matches(a, Event{}))
	_, _ = a.GrantXP(1000, progress.SkillCoding, progress.SourceQuiz, now)
	assert.True(t, first.Matches(a, Event{}))

	rising, _ := c.Get(IDRisingStar)
	assert.True(t, rising.Matches(a, Event{}))
	ninja, _ := c.Get(IDCodeNinja)
	assert.True(t, ninja.Matches(a, Event{}))
	math, _ := c.Get(IDMathWhiz)
	assert.False(t, math.Matches(a, Event{}))

	marathon, _ := c.Get(IDMarathon)
	assert.True(t, marathon.Matches(a, Event{Type: EventXPAward, Amount: 500}))
	assert.False(t, marathon.Matches(a, Event{Type: EventXPAward, Amount: 499}))

	comeback, _ := c.Get(IDComebackKid)
	assert.True(t, comeback.Matches(a, Event{Streak: progress.StreakChange{Outcome: progress.StreakReset, DaysSinceLast: 8}}))
	assert.False(t, comeback.Matches(a, Event{Streak: progress.StreakChange{Outcome: progress.StreakReset, DaysSinceLast: 2}}))

	explorer, _ := c.Get(IDCampusExplorer)
	assert.True(t, explorer.Matches(a, Event{Type: EventCampusJoin}))

	week, _ := c.Get(IDWeekWarrior)
	day := shared.NewDate(2026, time.March, 1)
	for i := 0; i < 6; i++ {
		a.RecordActivity(day.AddDays(i))
	}
	assert.False(t, week.Matches(a, Event{}))
	a.RecordActivity(day.AddDays(6))
	assert.True(t, week.Matches(a, Event{}))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Streak")
	require.NoError(t, err)
	assert.Equal(t, CategoryStreak, c)

	c, err = ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, Category(""), c)

	_, err = ParseCategory("bogus")
	assert.True(t, shared.IsValidation(err))
}

func TestRarityWeight(t *testing.T) {
	assert.Less(t, RarityCommon.Weight(), RarityLegendary.Weight())
	assert.False(t, Rarity("x").IsValid())
	assert.True(t, Rewards{}.IsZero())
	assert.False(t, Rewards{Title: "t"}.IsZero())
}
