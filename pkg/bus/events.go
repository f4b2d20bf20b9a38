package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventSessionState     EventType = "session_state"
	EventSnapshotReceived EventType = "snapshot_received"
	EventDecisionMade     EventType = "decision_made"
	EventDecisionSkipped  EventType = "decision_skipped"
	EventActionDispatched EventType = "action_dispatched"
	EventActionFailed     EventType = "action_failed"
	EventTextEmitted      EventType = "text_emitted"
	EventTickStarted      EventType = "tick_started"
	EventTickFinished     EventType = "tick_finished"
)

type Event struct {
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Bot     string            `json:"bot"`
	TickID  string            `json:"tick_id,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Publisher is the producer side of the bus.
type Publisher interface {
	PublishEvent(ctx context.Context, event Event) bool
}

func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()
	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		case <-stop:
		}
	}()

	return ch, unsubscribe
}
