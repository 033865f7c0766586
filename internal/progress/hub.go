// Package progress fans pipeline progress events out to per-project
// subscribers. Delivery is live-only: a subscriber sees events published
// after it attaches, never a replay, and only for its own project.
package progress

import "sync"

// Event is the wire shape streamed to progress watchers.
type Event struct {
	Type           string  `json:"type"`
	ProjectID      string  `json:"project_id"`
	Step           string  `json:"step,omitempty"`
	Progress       int     `json:"progress"`
	Message        string  `json:"message,omitempty"`
	Status         string  `json:"status,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ETASeconds     float64 `json:"eta_seconds"`
}

// Event type markers.
const (
	TypeProgress = "progress"
	TypeStatus   = "status"
	TypeError    = "error"
	TypePong     = "pong"
)

const defaultSubscriberBuffer = 64

// Hub routes events to the subscribers of one project each. Slow subscribers
// lose their oldest buffered events rather than stalling publishers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{}
	buffer      int
}

// NewHub constructs a hub with the default per-subscriber buffer.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		buffer:      defaultSubscriberBuffer,
	}
}

// Subscriber is one attached progress watcher.
type Subscriber struct {
	hub       *Hub
	projectID string
	ch        chan Event
	closed    bool
}

// Subscribe attaches a watcher to a project's event stream.
func (h *Hub) Subscribe(projectID string) *Subscriber {
	sub := &Subscriber{
		hub:       h,
		projectID: projectID,
		ch:        make(chan Event, h.buffer),
	}
	h.mu.Lock()
	set, ok := h.subscribers[projectID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subscribers[projectID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Events returns the subscriber's delivery channel. It is closed by Close.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber and closes its channel.
func (s *Subscriber) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if set, ok := h.subscribers[s.projectID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subscribers, s.projectID)
		}
	}
	close(s.ch)
}

// Publish delivers the event to every subscriber of its project. Publishing
// never blocks: a full subscriber drops its oldest event to make room.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[evt.ProjectID] {
		if sub.closed {
			continue
		}
		for {
			select {
			case sub.ch <- evt:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports how many watchers a project currently has.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[projectID])
}
