// Package notify fans out sequenced events to subscribers and keeps a
// bounded history so late subscribers can replay from a cursor.
package notify

import (
	"sync"
	"time"
)

const (
	MethodDocumentStored = "registry.document_stored"

	defaultSubscriberBuffer = 128
)

type Event struct {
	Seq       int64     `json:"seq"`
	Method    string    `json:"method"`
	Key       string    `json:"key,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter restricts a subscription. A zero Filter matches everything.
type Filter struct {
	Method string
	Key    string
}

func (f Filter) Match(e Event) bool {
	if f.Method != "" && f.Method != e.Method {
		return false
	}
	if f.Key != "" && f.Key != e.Key {
		return false
	}
	return true
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []Event
	subs    map[int]subscriber
	nextSub int
	now     func() time.Time
}

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]subscriber),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Publish records the event and delivers it to matching subscribers. A
// subscriber whose buffer is full is dropped and its channel closed.
func (h *Hub) Publish(method, key string, payload any) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := Event{
		Seq:       h.nextSeq,
		Method:    method,
		Key:       key,
		Payload:   payload,
		Timestamp: h.now(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]Event(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, sub := range h.subs {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			close(sub.ch)
			delete(h.subs, id)
		}
	}
	return event
}

// Subscribe returns retained events after fromSeq that match filter, a live
// channel, and a cancel func. Replay and live delivery never overlap.
func (h *Hub) Subscribe(fromSeq int64, filter Filter) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Event, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq && filter.Match(event) {
			replay = append(replay, event)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, defaultSubscriberBuffer)
	h.subs[id] = subscriber{ch: ch, filter: filter}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				close(sub.ch)
				delete(h.subs, id)
			}
		})
	}
	return replay, ch, cancel
}

func (h *Hub) BacklogSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

func (h *Hub) LastSeq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}
