package render

import (
	"sync"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
)

// EventKind names the published progress events.
type EventKind string

const (
	EventStart             EventKind = "start"
	EventTileComplete       EventKind = "tile-complete"
	EventPassComplete       EventKind = "pass-complete"
	EventGlitchPassComplete EventKind = "glitch-pass-complete"
	EventComplete           EventKind = "complete"
	EventCancelled          EventKind = "cancelled"
	EventError              EventKind = "error"
)

// Event is one progress notification published for a session.
type Event struct {
	SessionID  string
	Kind       EventKind
	State      State
	TilesDone  int
	TilesTotal int
	Stats      field.Stats
	ErrorKind  ErrorKind
	Message    string
	Timestamp  time.Time
}

// EventBroadcaster fans out Events to per-session subscriber channels:
// buffered channels with drop-on-full delivery, so a slow consumer never
// blocks the render.
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan Event]bool
	lastEvent map[string]Event
}

// NewEventBroadcaster returns an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan Event]bool),
		lastEvent: make(map[string]Event),
	}
}

// Subscribe registers a new client channel for sessionID, replaying the
// last published event (if any) for reconnecting clients.
func (b *EventBroadcaster) Subscribe(sessionID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[chan Event]bool)
	}
	b.clients[sessionID][ch] = true

	if last, ok := b.lastEvent[sessionID]; ok {
		select {
		case ch <- last:
		default:
		}
	}
	return ch
}

// Unsubscribe removes and closes a client channel.
func (b *EventBroadcaster) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[sessionID]; ok {
		if _, present := clients[ch]; present {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(b.clients, sessionID)
		}
	}
}

// Broadcast publishes event to every subscriber of event.SessionID,
// dropping it for any subscriber whose channel is full rather than
// blocking the compute workers.
func (b *EventBroadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.lastEvent[event.SessionID] = event
	for ch := range b.clients[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Cleanup closes and removes every subscriber for sessionID.
func (b *EventBroadcaster) Cleanup(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients[sessionID] {
		close(ch)
	}
	delete(b.clients, sessionID)
	delete(b.lastEvent, sessionID)
}
