package websocket

// EventPublisher publishes events to clients subscribed to a given
// topic — see AccountTopic and WorkflowTopic.
type EventPublisher interface {
	// Publish sends an event to all clients subscribed to topic.
	Publish(topic string, event Event)
}

// Ensure Hub implements EventPublisher.
var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher by broadcasting the event to every
// client subscribed to topic.
func (h *Hub) Publish(topic string, event Event) {
	h.Broadcast(topic, event)
}

// NoOpPublisher is a publisher that does nothing (for testing or when
// WebSocket broadcast is disabled).
type NoOpPublisher struct{}

// Publish does nothing.
func (n *NoOpPublisher) Publish(topic string, event Event) {}
