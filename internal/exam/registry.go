package exam

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown sessions and sessions owned by someone else.
var ErrNotFound = errors.New("exam session not found")

// ExpireFunc is called by Sweep for a finished session whose result was
// never saved, before the session is forgotten. An error keeps the session
// for the next sweep.
type ExpireFunc func(ctx context.Context, s *Session) error

// Registry keeps the live sessions in memory.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	clock    Clock
	onExpire ExpireFunc
}

// NewRegistry creates a registry that forgets sessions idle for longer than
// ttl. A nil clock uses wall time.
func NewRegistry(ttl time.Duration, clock Clock) *Registry {
	if clock == nil {
		clock = systemClock{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		clock:    clock,
	}
}

// Create registers a new session in the setup phase.
func (r *Registry) Create(owner string) *Session {
	s := newSession(uuid.NewString(), owner, r.clock)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	slog.Debug("exam session created", "id", s.id, "usuario", owner)
	return s
}

// Get returns the session if it exists and belongs to owner.
func (r *Registry) Get(id, owner string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.owner != owner {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OnExpire sets the hook that flushes unsaved results in Sweep.
func (r *Registry) OnExpire(fn ExpireFunc) {
	r.mu.Lock()
	r.onExpire = fn
	r.mu.Unlock()
}

// Sweep removes idle sessions and returns how many were removed. The
// expire hook runs outside the registry lock.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.clock.Now().Add(-r.ttl)
	r.mu.RLock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	onExpire := r.onExpire
	r.mu.RUnlock()

	removed := 0
	for _, s := range idle {
		if onExpire != nil && s.Phase() == PhaseReview && !s.Saved() {
			if err := onExpire(ctx, s); err != nil {
				slog.Warn("keeping idle exam session with unsaved result", "id", s.id, "usuario", s.owner, "error", err)
				continue
			}
		}
		r.mu.Lock()
		if r.sessions[s.id] == s && s.idleSince().Before(cutoff) {
			delete(r.sessions, s.id)
			removed++
		}
		r.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				slog.Info("expired idle exam sessions", "count", n, "live", r.Len())
			}
		}
	}
}
