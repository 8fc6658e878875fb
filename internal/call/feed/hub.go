// Package feed is the in-process push feed of call-state transitions. The
// calling subsystem publishes; the credit watcher subscribes per tenant.
package feed

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	buffer  []calldomain.TransitionEvent
	subs    map[uint64]chan calldomain.TransitionEvent
	nextID  uint64
	dropped uint64
}

// Subscription is one tenant-scoped feed of transition events. Slow
// consumers lose events rather than blocking the publisher; the
// reconciliation sweeper heals anything dropped here.
type Subscription struct {
	hub    *Hub
	userID snowflake.ID
	id     uint64
	ch     chan calldomain.TransitionEvent
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(event calldomain.TransitionEvent) {
	if h == nil || event.UserID == 0 {
		return
	}
	h.mu.RLock()
	stream := h.streams[event.UserID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan calldomain.TransitionEvent, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			stream.mu.Lock()
			stream.dropped++
			stream.mu.Unlock()
		}
	}
}

// Subscribe registers a consumer for the tenant's transitions and returns
// the recent buffer so a late subscriber can catch up.
func (h *Hub) Subscribe(userID snowflake.ID) (*Subscription, []calldomain.TransitionEvent, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	if userID == 0 {
		return nil, nil, errors.New("invalid_tenant")
	}

	stream := h.ensureStream(userID)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan calldomain.TransitionEvent)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan calldomain.TransitionEvent, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]calldomain.TransitionEvent(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:    h,
		userID: userID,
		id:     id,
		ch:     ch,
	}, buffer, nil
}

// Dropped reports how many events were discarded for the tenant because a
// subscriber buffer was full.
func (h *Hub) Dropped(userID snowflake.ID) uint64 {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[userID]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.dropped
}

func (h *Hub) ensureStream(userID snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[userID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[userID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan calldomain.TransitionEvent)}
		h.streams[userID] = current
	}
	return current
}

func (h *Hub) unsubscribe(userID snowflake.ID, id uint64) {
	if h == nil {
		return
	}

	h.mu.RLock()
	stream := h.streams[userID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[userID]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, userID)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan calldomain.TransitionEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.userID, s.id)
	})
}
