// Package feed fans dashboard updates out to server-sent-event viewers.
package feed

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event kinds published by the dashboard.
const (
	KindSeries  = "series"
	KindPoint   = "point"
	KindNotice  = "notice"
	KindStatus  = "status"
	KindPreview = "preview"
)

// Event is one update; Data is already JSON-encoded.
type Event struct {
	Kind string
	Data string
}

// NewEvent encodes v as the event payload.
func NewEvent(kind string, v any) Event {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Debug("feed event encode failed", "kind", kind, "error", err)
		b = []byte("null")
	}
	return Event{Kind: kind, Data: string(b)}
}

// subscriber is one viewer; a nil kinds set accepts every event.
type subscriber struct {
	ch    chan Event
	kinds map[string]bool
}

func (s subscriber) accepts(kind string) bool {
	return s.kinds == nil || s.kinds[kind]
}

// Broker fans out events to subscribers by kind. Slow subscribers have
// events dropped rather than blocking the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	nextID      atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]subscriber)}
}

// KindSet builds a filter from kind names, ignoring blanks. An empty input
// yields nil, which accepts every kind.
func KindSet(kinds ...string) map[string]bool {
	var set map[string]bool
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool)
		}
		set[k] = true
	}
	return set
}

// Subscribe registers a subscriber for the given kinds (all kinds when none
// are named) and returns its ID and event channel. Events of other kinds
// never occupy the subscriber's buffer.
func (b *Broker) Subscribe(kinds ...string) (int64, <-chan Event) {
	id := b.nextID.Add(1)
	sub := subscriber{ch: make(chan Event, subscriberBufSize), kinds: KindSet(kinds...)}
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish delivers evt to every subscriber of its kind without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.accepts(evt.Kind) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }
