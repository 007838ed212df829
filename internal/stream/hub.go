// Package stream fans pipeline events out to live consumers such as
// WebSocket clients and the watch command.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"holdings-tracker/internal/models"
)

// EventType names the kind of event on the hub.
type EventType string

const (
	// EventSnapshot carries a freshly aggregated portfolio.
	EventSnapshot EventType = "snapshot"
	// EventRefreshFailed reports a pass that produced no snapshot.
	EventRefreshFailed EventType = "refresh_failed"
)

// Event is one message distributed by the hub.
type Event struct {
	Type     EventType                 `json:"type"`
	Data     *models.PortfolioSnapshot `json:"data,omitempty"`
	Error    string                    `json:"error,omitempty"`
	SentAt   time.Time                 `json:"sent_at"`
	Sequence uint64                    `json:"sequence"`
}

// HubConfig holds configuration for the Stream Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before logging.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:                64,
		SubscriberBufferSize:      8,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub distributes events from the scheduler to any number of subscribers.
// Sends never block: a subscriber whose buffer is full misses the event.
type Hub struct {
	config      HubConfig
	logger      zerolog.Logger
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	events      chan Event
	done        chan struct{}
	started     bool
	sequence    atomic.Uint64
	latest      atomic.Pointer[Event]

	// Metrics
	received  atomic.Uint64
	broadcast atomic.Uint64
	dropped   atomic.Uint64
}

// Subscriber is one consumer channel with its drop counter.
type Subscriber struct {
	ID           uint64
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new stream hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = 1
	}
	return &Hub{
		config:      config,
		logger:      logger.With().Str("component", "stream").Logger(),
		subscribers: make(map[uint64]*Subscriber),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.received.Add(1)
			h.fanOut(ev)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}

	close(h.done)
	h.started = false

	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Subscribe registers a consumer. The returned cancel func unsubscribes and
// closes the channel. When a snapshot was already published, it is queued
// on the new channel so late joiners render immediately.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.config.SubscriberBufferSize)
	if last := h.latest.Load(); last != nil {
		ch <- *last
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = &Subscriber{ID: id, Channel: ch, CreatedAt: time.Now()}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// PublishSnapshot queues a snapshot event.
func (h *Hub) PublishSnapshot(snap *models.PortfolioSnapshot) {
	h.Publish(Event{Type: EventSnapshot, Data: snap})
}

// PublishError queues a failed-refresh event.
func (h *Hub) PublishError(err error) {
	h.Publish(Event{Type: EventRefreshFailed, Error: err.Error()})
}

// Publish stamps and queues an event. This is non-blocking: if the internal
// buffer is full, the event is dropped.
func (h *Hub) Publish(ev Event) {
	ev.Sequence = h.sequence.Add(1)
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now()
	}
	if ev.Type == EventSnapshot {
		e := ev
		h.latest.Store(&e)
	}

	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Latest returns the most recent snapshot event, if any.
func (h *Hub) Latest() (Event, bool) {
	if last := h.latest.Load(); last != nil {
		return *last, true
	}
	return Event{}, false
}

// fanOut sends ev to every subscriber without blocking.
func (h *Hub) fanOut(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- ev:
			sub.DroppedCount = 0
			h.broadcast.Add(1)
		default:
			sub.DroppedCount++
			h.dropped.Add(1)
			if sub.DroppedCount == h.config.SlowConsumerDropThreshold {
				h.logger.Warn().
					Uint64("subscriber", sub.ID).
					Int("dropped", sub.DroppedCount).
					Msg("Slow stream consumer")
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	return HubMetrics{
		EventsReceived:  h.received.Load(),
		EventsBroadcast: h.broadcast.Load(),
		EventsDropped:   h.dropped.Load(),
		Subscribers:     h.SubscriberCount(),
	}
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsBroadcast uint64 `json:"events_broadcast"`
	EventsDropped   uint64 `json:"events_dropped"`
	Subscribers     int    `json:"subscribers"`
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}
