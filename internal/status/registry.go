// Package status implements the per-session progress event registry. Workers
// publish ordered events for a session id; any number of stream consumers can
// subscribe, each receiving a short replay of recent events before live ones.
package status

import "sync"

// Status values published by the pipeline.
const (
	StatusStarting   = "starting"
	StatusUsingCache = "using-cache"
	StatusDownloaded = "downloaded"
	StatusConverting = "converting"
	StatusFailed     = "failed"
	StatusComplete   = "complete"
)

// ReplayLimit bounds how many recent events a session retains for late
// subscribers; older events are dropped.
const ReplayLimit = 10

// subscriberBuffer sizes each subscriber's live channel. A subscriber that
// falls further behind than this loses events rather than blocking a worker.
const subscriberBuffer = 16

// Event is one progress update for a session.
type Event struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Terminal reports whether the event ends its session's stream.
func (e Event) Terminal() bool {
	return e.Status == StatusFailed || e.Status == StatusComplete
}

type session struct {
	replay      []Event
	subscribers []chan Event
}

// Registry maps session ids to their event queues. All state lives behind
// one mutex; sessions are created on first access from either the publish or
// the subscribe side.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Publish appends an event to the session's replay buffer and fans it out to
// live subscribers. The replay buffer keeps the most recent ReplayLimit
// events even with no subscriber attached. Sends to slow subscribers are
// dropped, never blocked on.
func (r *Registry) Publish(sessionID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(sessionID)
	s.replay = append(s.replay, ev)
	if len(s.replay) > ReplayLimit {
		s.replay = s.replay[len(s.replay)-ReplayLimit:]
	}

	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscription is one consumer's view of a session: the replay snapshot
// taken at subscription time, then live events.
type Subscription struct {
	replay []Event
	live   chan Event
}

// Replay returns the events published before this subscription was created,
// in publish order. Consumers must drain these before reading Live.
func (s *Subscription) Replay() []Event {
	return s.replay
}

// Live returns the channel of events published after subscription. The
// channel is closed when the session is cleaned up.
func (s *Subscription) Live() <-chan Event {
	return s.live
}

// Subscribe attaches a consumer to the session, creating the session if it
// does not exist yet. The returned subscription preserves total event order
// across the replay/live join point: everything already published is in
// Replay, everything after lands on Live.
func (r *Registry) Subscribe(sessionID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(sessionID)
	sub := &Subscription{
		replay: append([]Event(nil), s.replay...),
		live:   make(chan Event, subscriberBuffer),
	}
	s.subscribers = append(s.subscribers, sub.live)
	return sub
}

// Unsubscribe detaches a consumer from the session. A session left with no
// subscribers and no published events is dropped, so subscriptions to ids
// that never see a worker do not accumulate state.
func (r *Registry) Unsubscribe(sessionID string, sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for i, ch := range s.subscribers {
		if ch == sub.live {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
	if len(s.subscribers) == 0 && len(s.replay) == 0 {
		delete(r.sessions, sessionID)
	}
}

// Cleanup removes all registry state for a session and closes its
// subscriber channels. Safe to call for unknown sessions.
func (r *Registry) Cleanup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for _, ch := range s.subscribers {
		close(ch)
	}
	delete(r.sessions, sessionID)
}

// ActiveSessions returns the number of sessions currently registered.
func (r *Registry) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// getOrCreateLocked returns the session for id, creating it if absent.
// Caller must hold r.mu.
func (r *Registry) getOrCreateLocked(sessionID string) *session {
	if s, ok := r.sessions[sessionID]; ok {
		return s
	}
	s := &session{}
	r.sessions[sessionID] = s
	return s
}
