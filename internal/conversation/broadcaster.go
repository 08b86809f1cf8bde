// ABOUTME: In-memory fan-out of generation progress to every client watching a thread
// ABOUTME: Publishes workflow events and terminal routing outcomes per thread id

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/muse-gateway/internal/workflow"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Terminal event kinds published after routing finishes.
const (
	KindRouted workflow.EventKind = "routed"
	KindFailed workflow.EventKind = "failed"
)

// ThreadEvent is one progress notification for a thread.
type ThreadEvent struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	At       time.Time      `json:"at"`
	Event    workflow.Event `json:"event"`
	Routed   string         `json:"routed,omitempty"`
}

// EventBroadcaster provides in-memory pub/sub for thread events so a second
// client watching a thread sees the reply being produced.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *ThreadEvent // threadID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *ThreadEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events on threadID. The subscription is removed and
// its channel closed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, threadID string) (<-chan *ThreadEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *ThreadEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[threadID]; !ok {
		b.subscribers[threadID] = make(map[string]chan *ThreadEvent)
	}
	b.subscribers[threadID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "thread_id", threadID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(threadID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the event's thread.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *ThreadEvent) {
	b.mu.RLock()
	subs := b.subscribers[event.ThreadID]
	targets := make([]chan *ThreadEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	// sends happen under the read lock so Unsubscribe cannot close a channel mid-send
	defer b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"thread_id", event.ThreadID,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(threadID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[threadID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, threadID)
	}

	b.logger.Debug("subscriber removed", "thread_id", threadID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for threadID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, threadID)
	}
}

func newThreadEvent(threadID string, ev workflow.Event) *ThreadEvent {
	return &ThreadEvent{
		ID:       uuid.New().String(),
		ThreadID: threadID,
		At:       time.Now(),
		Event:    ev,
	}
}
