// Package notify fans block and status events out to UI subscribers (SSE)
// and to registered chat adapters (Slack, Discord).
package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

// Event kinds carried to the UI.
const (
	KindBlockCreated   = "block_created"
	KindBlockUpdated   = "block_updated"
	KindBlockCompleted = "block_completed"
	KindStatusChanged  = "status_changed"
)

// Event is one outbound notification.
type Event struct {
	Kind      string    `json:"kind"`
	ProjectID string    `json:"project_id"`
	BlockID   string    `json:"block_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FormattedEvent is an event rendered for display in chat.
type FormattedEvent struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color hint
	Fields   []Field
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Adapter is the interface chat-platform implementations satisfy.
type Adapter interface {
	// Send delivers a formatted event to the platform.
	Send(ctx context.Context, ev FormattedEvent) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Hub owns subscriber channels and adapters. Publishing never blocks: slow
// subscribers drop events.
type Hub struct {
	mu       sync.Mutex
	subs     map[chan Event]struct{}
	adapters []Adapter
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel receiving all published events.
func (h *Hub) Subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, 32)
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel. Safe to call twice.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// RegisterAdapter adds a chat adapter to the fanout.
func (h *Hub) RegisterAdapter(a Adapter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adapters = append(h.adapters, a)
}

// Close shuts down all adapters and subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Event]struct{})
	for _, a := range h.adapters {
		a.Close()
	}
	h.adapters = nil
}

// Publish fans an event out to subscribers, and to adapters for the kinds
// worth a chat message (per-token block updates stay UI-only).
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber buffer is full.
		}
	}
	adapters := append([]Adapter(nil), h.adapters...)
	h.mu.Unlock()

	if len(adapters) == 0 || ev.Kind == KindBlockUpdated {
		return
	}
	formatted := FormatEvent(ev)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, a := range adapters {
			if err := a.Send(ctx, formatted); err != nil {
				log.Printf("notify: adapter send: %v", err)
			}
		}
	}()
}

// BlockCreated implements the notifier consumed by the orchestrator.
func (h *Hub) BlockCreated(projectID, blockID string) {
	h.Publish(Event{Kind: KindBlockCreated, ProjectID: projectID, BlockID: blockID})
}

// BlockUpdated implements the notifier consumed by the tracker/action log.
func (h *Hub) BlockUpdated(projectID, blockID string) {
	h.Publish(Event{Kind: KindBlockUpdated, ProjectID: projectID, BlockID: blockID})
}

// BlockCompleted implements the notifier consumed by the tracker.
func (h *Hub) BlockCompleted(projectID, blockID string) {
	h.Publish(Event{Kind: KindBlockCompleted, ProjectID: projectID, BlockID: blockID})
}

// StatusChanged reports a project status transition (session or dev server).
func (h *Hub) StatusChanged(projectID, status, detail string) {
	h.Publish(Event{Kind: KindStatusChanged, ProjectID: projectID, Status: status, Detail: detail})
}
