package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Progress events
	EventXPAwarded   EventType = "progress.xp_awarded"
	EventLevelUp     EventType = "progress.level_up"
	EventStreakReset EventType = "progress.streak_reset"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Campus events
	EventCampusJoined EventType = "campus.joined"
	EventCampusLeft   EventType = "campus.left"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is published after an award commits. It carries the full
// standing of the user so leaderboard projections never need to read back.
type XPAwardedEvent struct {
	BaseEvent
	DisplayName string           `json:"display_name"`
	Amount      int64            `json:"amount"`
	Skill       string           `json:"skill,omitempty"`
	Source      string           `json:"source"`
	TotalXP     int64            `json:"total_xp"`
	Level       int              `json:"level"`
	SkillXP     map[string]int64 `json:"skill_xp"`
	LastActive  Date             `json:"last_active"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"display_name": e.DisplayName,
		"amount":       e.Amount,
		"skill":        e.Skill,
		"source":       e.Source,
		"total_xp":     e.TotalXP,
		"level":        e.Level,
		"skill_xp":     e.SkillXP,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID, displayName string, amount int64, skill, source string, totalXP int64, level int, skillXP map[string]int64) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent:   NewBaseEvent(EventXPAwarded, userID),
		DisplayName: displayName,
		Amount:      amount,
		Skill:       skill,
		Source:      source,
		TotalXP:     totalXP,
		Level:       level,
		SkillXP:     skillXP,
	}
}

// LevelUpEvent is published when the overall level increases.
type LevelUpEvent struct {
	BaseEvent
	PreviousLevel int `json:"previous_level"`
	NewLevel      int `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_level": e.PreviousLevel,
		"new_level":      e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, previous, next int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     NewBaseEvent(EventLevelUp, userID),
		PreviousLevel: previous,
		NewLevel:      next,
	}
}

// StreakResetEvent is published when a gap resets a running streak.
type StreakResetEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
	DaysMissed     int `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, previousStreak, daysMissed int) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent:      NewBaseEvent(EventStreakReset, userID),
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// AchievementUnlockedEvent is published once per newly earned achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Rarity        string `json:"rarity"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"rarity":         e.Rarity,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, rarity string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		AchievementID: achievementID,
		Rarity:        rarity,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Campus Events
// ═══════════════════════════════════════════════════════════════════════════

// CampusPresenceEvent is published on join and leave (including sweeps).
type CampusPresenceEvent struct {
	BaseEvent
	LocationID string `json:"location_id"`
	Reason     string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e CampusPresenceEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"location_id": e.LocationID,
		"reason":      e.Reason,
	}
}

// NewCampusJoinedEvent creates a join event.
func NewCampusJoinedEvent(userID, locationID string) CampusPresenceEvent {
	return CampusPresenceEvent{
		BaseEvent:  NewBaseEvent(EventCampusJoined, userID),
		LocationID: locationID,
	}
}

// NewCampusLeftEvent creates a leave event. Reason is "leave", "moved" or "timeout".
func NewCampusLeftEvent(userID, locationID, reason string) CampusPresenceEvent {
	return CampusPresenceEvent{
		BaseEvent:  NewBaseEvent(EventCampusLeft, userID),
		LocationID: locationID,
		Reason:     reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
