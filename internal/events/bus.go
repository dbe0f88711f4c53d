package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPatternDetected EventType = "PATTERN_DETECTED"
	EventTokenDispatched EventType = "TOKEN_DISPATCHED"
	EventSwapExecuted    EventType = "SWAP_EXECUTED"
	EventSwapFailed      EventType = "SWAP_FAILED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventExitTriggered   EventType = "EXIT_TRIGGERED"
	EventBreakerTripped  EventType = "BREAKER_TRIPPED"
	EventBreakerCleared  EventType = "BREAKER_CLEARED"
	EventEmergencyStop   EventType = "EMERGENCY_STOP"
	EventTokenBanned     EventType = "TOKEN_BANNED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its own
// goroutine so a slow handler never blocks the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishPatternDetected publishes a pattern detection event
func (b *Bus) PublishPatternDetected(address, pattern, signal string, confidence float64) {
	b.Publish(Event{
		Type: EventPatternDetected,
		Data: map[string]interface{}{
			"address":    address,
			"pattern":    pattern,
			"signal":     signal,
			"confidence": confidence,
		},
	})
}

// PublishSwapExecuted publishes a successful swap event
func (b *Bus) PublishSwapExecuted(address, signature string, amountUSD, price float64, dryRun bool) {
	b.Publish(Event{
		Type: EventSwapExecuted,
		Data: map[string]interface{}{
			"address":    address,
			"signature":  signature,
			"amount_usd": amountUSD,
			"price":      price,
			"dry_run":    dryRun,
		},
	})
}

// PublishSwapFailed publishes a failed swap event
func (b *Bus) PublishSwapFailed(address, kind string, err error) {
	data := map[string]interface{}{
		"address": address,
		"kind":    kind,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type: EventSwapFailed,
		Data: data,
	})
}

// PublishPositionOpened publishes a position opened event
func (b *Bus) PublishPositionOpened(address string, entryPrice, sizeUSD float64) {
	b.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"address":     address,
			"entry_price": entryPrice,
			"size_usd":    sizeUSD,
		},
	})
}

// PublishPositionClosed publishes a position closed event
func (b *Bus) PublishPositionClosed(address, reason string, entryPrice, exitPrice, pnl float64) {
	b.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"address":     address,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"pnl":         pnl,
		},
	})
}

// PublishBreakerTripped publishes a circuit breaker trip event
func (b *Bus) PublishBreakerTripped(name, reason string) {
	b.Publish(Event{
		Type: EventBreakerTripped,
		Data: map[string]interface{}{
			"breaker": name,
			"reason":  reason,
		},
	})
}

// PublishBreakerCleared publishes a circuit breaker clear event
func (b *Bus) PublishBreakerCleared(name string) {
	b.Publish(Event{
		Type: EventBreakerCleared,
		Data: map[string]interface{}{
			"breaker": name,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
