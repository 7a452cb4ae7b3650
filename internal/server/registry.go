package server

import (
	"log"
	"sync"
	"time"
)

// session is what the registry needs from a tarot or diagnosis session.
type session interface {
	ID() string
	UserID() string
	LastActive() time.Time
	Close()
}

// Registry tracks in-memory sessions by id. Sessions untouched for longer
// than the idle timeout are closed and dropped by Sweep.
type Registry[S session] struct {
	kind string
	idle time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]S
}

// NewRegistry creates a Registry. kind labels log lines.
func NewRegistry[S session](kind string, idle time.Duration, now func() time.Time) *Registry[S] {
	if now == nil {
		now = time.Now
	}
	return &Registry[S]{
		kind:     kind,
		idle:     idle,
		now:      now,
		sessions: make(map[string]S),
	}
}

// Add registers s.
func (r *Registry[S]) Add(s S) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns the session with id if it belongs to userID. Another user's
// session is reported as missing.
func (r *Registry[S]) Get(id, userID string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID() != userID {
		var zero S
		return zero, false
	}
	return s, true
}

// Remove closes and drops the session with id if it belongs to userID.
func (r *Registry[S]) Remove(id, userID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.UserID() == userID {
		delete(r.sessions, id)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of tracked sessions.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes and drops idle sessions and returns how many it removed.
func (r *Registry[S]) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)

	// LastActive waits on a session busy with store I/O, so it is read
	// without holding the registry lock.
	r.mu.RLock()
	all := make([]S, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	var idle []S
	for _, s := range all {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	r.mu.Lock()
	var expired []S
	for _, s := range idle {
		if cur, ok := r.sessions[s.ID()]; ok && any(cur) == any(s) {
			expired = append(expired, s)
			delete(r.sessions, s.ID())
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		log.Printf("server: expired %d idle %s session(s)", len(expired), r.kind)
	}
	return len(expired)
}

// CloseAll closes and drops every session.
func (r *Registry[S]) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]S)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
