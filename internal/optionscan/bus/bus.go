// Package bus provides a multi-subscriber fan-out of ScanEvent values
// with late-join replay.
package bus

import (
	"sync"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
)

const defaultQueueSize = 64

// subscriber is one registered listener's delivery queue: a chan
// ScanEvent consumed in-process rather than a chan []byte fed to a live
// socket.
type subscriber struct {
	id      uint64
	events  chan optionscan.ScanEvent
	dropped uint64
}

// Bus fans published events out to every subscriber without blocking the
// publisher. It keeps JobWSHub's register/unregister/broadcast roles but
// replaces the hub's select loop with a mutex-guarded subscriber map.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	closed      bool
	snapshotter func() (inProgress bool, snapshot optionscan.ScanEvent)
	logger      *common.Logger
}

// New builds a Bus. snapshotter is consulted on Subscribe to build the
// synthetic ScanStarted replay event for late joiners; it may be nil if no
// late-join replay is needed (e.g. in isolated unit tests).
func New(logger *common.Logger, snapshotter func() (bool, optionscan.ScanEvent)) *Bus {
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		snapshotter: snapshotter,
		logger:      logger,
	}
}

// Subscribe registers a new listener and returns its event channel plus an
// idempotent unsubscribe function. If a scan is currently in progress, a
// synthetic ScanStarted is enqueued ahead of any live event.
func (b *Bus) Subscribe() (<-chan optionscan.ScanEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, events: make(chan optionscan.ScanEvent, defaultQueueSize)}
	b.subscribers[id] = sub

	if b.snapshotter != nil {
		if inProgress, replay := b.snapshotter(); inProgress {
			sub.events <- replay
		}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(s.events)
			}
		})
	}

	return sub.events, unsubscribe
}

// Publish delivers event to every current subscriber, never blocking. A
// subscriber whose queue is full has the event dropped and its drop
// counter incremented.
func (b *Bus) Publish(event optionscan.ScanEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.events <- event:
		default:
			sub.dropped++
			if b.logger != nil {
				b.logger.Warn().
					Str("eventType", string(event.Type)).
					Int("subscriberQueueSize", defaultQueueSize).
					Msg("progress bus subscriber queue full, dropping event")
			}
		}
	}
}

// Close closes every subscriber's queue. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.events)
		delete(b.subscribers, id)
	}
}

// SubscriberCount reports the number of currently-registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// DroppedCount returns the per-subscriber drop counter, keyed by internal
// subscriber ID, for diagnostics.
func (b *Bus) DroppedCount() map[uint64]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[uint64]uint64, len(b.subscribers))
	for id, sub := range b.subscribers {
		out[id] = sub.dropped
	}
	return out
}
