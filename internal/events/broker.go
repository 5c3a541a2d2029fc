package events

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

const (
	KindExport   = "export"
	KindAnalysis = "analysis"
	KindClosed   = "closed"
)

// Event is one canvas notification delivered to stream subscribers.
type Event struct {
	Canvas  string
	Kind    string
	Payload string
}

// Subscription receives the events of one canvas, or of every canvas when
// Canvas is empty. C is closed on Unsubscribe or when the canvas closes.
type Subscription struct {
	Canvas string
	C      <-chan Event

	id      int64
	ch      chan Event
	dropped atomic.Int64
}

// Dropped returns how many events this subscriber missed on a full buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) wants(evt Event) bool {
	return s.Canvas == "" || s.Canvas == evt.Canvas
}

// offer hands evt over without blocking.
func (s *Subscription) offer(evt Event) bool {
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Stats summarises broker activity.
type Stats struct {
	Clients   int   `json:"clients"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// Broker routes canvas events to subscribers and tears down a canvas's
// subscriptions when it closes.
type Broker struct {
	mu        sync.RWMutex
	subs      map[int64]*Subscription
	nextID    atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]*Subscription)}
}

// Subscribe registers a client for canvas ("" for all canvases). Slow
// consumers have events dropped rather than stalling the publisher.
func (b *Broker) Subscribe(canvas string) *Subscription {
	ch := make(chan Event, subscriberBufSize)
	sub := &Subscription{Canvas: canvas, C: ch, id: b.nextID.Add(1), ch: ch}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. It is safe after CloseCanvas already ended it.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(sub)
}

func (b *Broker) detachLocked(sub *Subscription) {
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	b.dropped.Add(sub.Dropped())
}

// Publish delivers evt to every interested subscriber and returns how many
// received it.
func (b *Broker) Publish(evt Event) int {
	b.published.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.wants(evt) && sub.offer(evt) {
			n++
		}
	}
	return n
}

// CloseCanvas sends a closed event for canvas and ends every subscription
// scoped to it. Wildcard subscribers only see the event.
func (b *Broker) CloseCanvas(canvas, payload string) {
	evt := Event{Canvas: canvas, Kind: KindClosed, Payload: payload}
	b.published.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !sub.wants(evt) {
			continue
		}
		sub.offer(evt)
		if sub.Canvas == canvas {
			b.detachLocked(sub)
		}
	}
}

// Stats reports live clients and totals. Dropped includes ended
// subscriptions.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{Clients: len(b.subs), Published: b.published.Load(), Dropped: b.dropped.Load()}
	for _, sub := range b.subs {
		st.Dropped += sub.Dropped()
	}
	return st
}
