package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the action a domain event reports (created, updated,
// deleted, or one of the banking-specific verbs below).
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"

	EventTypeStatusChanged  EventType = "status_changed"
	EventTypePlaced         EventType = "placed"
	EventTypeReleased       EventType = "released"
	EventTypeExpired        EventType = "expired"
	EventTypePosted         EventType = "posted"
	EventTypeReversed       EventType = "reversed"
	EventTypeApprovalNeeded EventType = "approval_needed"
	EventTypeCompleted      EventType = "completed"
	EventTypeTimedOut       EventType = "timed_out"
)

// EntityType names the domain aggregate an Event describes.
type EntityType string

const (
	EntityTypeAccount     EntityType = "account"
	EntityTypeHold        EntityType = "hold"
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeWorkflow    EntityType = "workflow"
)

// Event is a WebSocket message broadcast to every client subscribed to
// the topic it concerns (an account or a workflow). Format: { type,
// entity, payload, timestamp }.
type Event struct {
	Type      string      `json:"type"`      // e.g. "account.status_changed"
	Entity    EntityType  `json:"entity"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new event with the given type, entity, and payload.
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AccountStatusChanged creates an account.status_changed event.
func AccountStatusChanged(payload interface{}) Event {
	return NewEvent(EventTypeStatusChanged, EntityTypeAccount, payload)
}

// HoldPlaced creates a hold.placed event.
func HoldPlaced(payload interface{}) Event {
	return NewEvent(EventTypePlaced, EntityTypeHold, payload)
}

// HoldReleased creates a hold.released event.
func HoldReleased(payload interface{}) Event {
	return NewEvent(EventTypeReleased, EntityTypeHold, payload)
}

// HoldExpired creates a hold.expired event, broadcast once
// ProcessExpiredHolds releases an expired hold automatically.
func HoldExpired(payload interface{}) Event {
	return NewEvent(EventTypeExpired, EntityTypeHold, payload)
}

// TransactionPosted creates a transaction.posted event.
func TransactionPosted(payload interface{}) Event {
	return NewEvent(EventTypePosted, EntityTypeTransaction, payload)
}

// TransactionReversed creates a transaction.reversed event.
func TransactionReversed(payload interface{}) Event {
	return NewEvent(EventTypeReversed, EntityTypeTransaction, payload)
}

// TransactionApprovalNeeded creates a transaction.approval_needed event,
// broadcast when a posting is routed to an approval workflow instead of
// posting immediately.
func TransactionApprovalNeeded(payload interface{}) Event {
	return NewEvent(EventTypeApprovalNeeded, EntityTypeTransaction, payload)
}

// WorkflowCompleted creates a workflow.completed event.
func WorkflowCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypeWorkflow, payload)
}

// WorkflowTimedOut creates a workflow.timed_out event, broadcast by
// ProcessTimeouts.
func WorkflowTimedOut(payload interface{}) Event {
	return NewEvent(EventTypeTimedOut, EntityTypeWorkflow, payload)
}
