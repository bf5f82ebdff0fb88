package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. They are published after the unit of work commits and
// fan out to the UI change feed and to cache invalidation.
const (
	// Challenge lifecycle events
	EventChallengeProposed   EventType = "challenge.proposed"
	EventChallengeAccepted   EventType = "challenge.accepted"
	EventChallengeRejected   EventType = "challenge.rejected"
	EventChallengeCancelled  EventType = "challenge.cancelled"
	EventChallengeProgressed EventType = "challenge.progressed"
	EventChallengeSettled    EventType = "challenge.settled"

	// Ledger events
	EventXPCredited EventType = "ledger.xp_credited"
	EventXPDebited  EventType = "ledger.xp_debited"
	EventLevelUp    EventType = "progress.level_up"

	// Habit events
	EventCompletionRecorded EventType = "habit.completion_recorded"
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
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
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

// NewBaseEvent creates a new base event stamped at now.
func NewBaseEvent(eventType EventType, aggregateID string, now time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   now,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Events
// ═══════════════════════════════════════════════════════════════════════════

// ChallengeEvent covers every challenge lifecycle transition. The UI feed only
// needs the participants, the new status and the current score.
type ChallengeEvent struct {
	BaseEvent
	ChallengerID       string `json:"challenger_id"`
	OpponentID         string `json:"opponent_id"`
	Status             string `json:"status"`
	StakeXP            int64  `json:"stake_xp"`
	ChallengerProgress int    `json:"challenger_progress"`
	OpponentProgress   int    `json:"opponent_progress"`
	WinnerID           string `json:"winner_id,omitempty"`
}

// Payload implements Event interface.
func (e ChallengeEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"challenger_id":       e.ChallengerID,
		"opponent_id":         e.OpponentID,
		"status":              e.Status,
		"stake_xp":            e.StakeXP,
		"challenger_progress": e.ChallengerProgress,
		"opponent_progress":   e.OpponentProgress,
	}
	if e.WinnerID != "" {
		p["winner_id"] = e.WinnerID
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPChangedEvent is emitted for every committed credit or debit.
type XPChangedEvent struct {
	BaseEvent
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
	Reason     string `json:"reason"`
	Reference  string `json:"reference"`
}

// Payload implements Event interface.
func (e XPChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":      e.Amount,
		"new_balance": e.NewBalance,
		"reason":      e.Reason,
		"reference":   e.Reference,
	}
}

// NewXPChangedEvent creates a credit or debit event for userID.
func NewXPChangedEvent(credit bool, userID string, amount, newBalance int64, reason, reference string, now time.Time) XPChangedEvent {
	t := EventXPDebited
	if credit {
		t = EventXPCredited
	}
	return XPChangedEvent{
		BaseEvent:  NewBaseEvent(t, userID, now),
		Amount:     amount,
		NewBalance: newBalance,
		Reason:     reason,
		Reference:  reference,
	}
}

// LevelUpEvent is emitted when a credit moves a user into a higher level.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Title    string `json:"title"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"title":     e.Title,
	}
}

// NewLevelUpEvent creates a LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, title string, now time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, now),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		Title:     title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Habit Events
// ═══════════════════════════════════════════════════════════════════════════

// CompletionRecordedEvent is emitted for the first completion of a habit on a day.
type CompletionRecordedEvent struct {
	BaseEvent
	UserID     string   `json:"user_id"`
	Date       string   `json:"date"`
	Challenges []string `json:"challenges"`
}

// Payload implements Event interface.
func (e CompletionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"date":       e.Date,
		"challenges": e.Challenges,
	}
}

// NewCompletionRecordedEvent creates a CompletionRecordedEvent keyed by habit.
func NewCompletionRecordedEvent(habitID, userID, date string, challenges []string, now time.Time) CompletionRecordedEvent {
	return CompletionRecordedEvent{
		BaseEvent:  NewBaseEvent(EventCompletionRecorded, habitID, now),
		UserID:     userID,
		Date:       date,
		Challenges: challenges,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
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
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }

// PublishAll publishes events in order and returns the first error.
// Remaining events are still attempted.
func PublishAll(p EventPublisher, events []Event) error {
	var first error
	for _, e := range events {
		if err := p.Publish(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
