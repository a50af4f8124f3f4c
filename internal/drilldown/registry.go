package drilldown

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates an unknown or expired dashboard session.
var ErrSessionNotFound = errors.New("drilldown: session not found")

// Factory builds a fresh controller for a seller.
type Factory func(sellerID int64) *Controller

type session struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry keeps dashboard sessions in memory and evicts idle ones.
type Registry struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	onSweep func(remaining int)

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewRegistry constructs a registry. A non-positive ttl disables eviction.
func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// OnSweep registers fn to receive the session count after idle sessions are evicted.
func (r *Registry) OnSweep(fn func(remaining int)) {
	r.onSweep = fn
}

// Create opens a new session for the seller.
func (r *Registry) Create(sellerID int64) (uuid.UUID, *Controller) {
	ctrl := r.factory(sellerID)
	id := uuid.New()
	r.mu.Lock()
	r.sessions[id] = &session{ctrl: ctrl, lastSeen: r.now()}
	r.mu.Unlock()
	return id, ctrl
}

// Get returns the session controller and marks it as used.
func (r *Registry) Get(id uuid.UUID) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || r.expired(s) {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.now()
	return s.ctrl, nil
}

// Delete closes a session. It reports whether the session existed.
func (r *Registry) Delete(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if r.expired(s) {
			delete(r.sessions, id)
			removed++
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if removed > 0 && r.onSweep != nil {
		r.onSweep(remaining)
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("evicted idle dashboard sessions", slog.Int("count", n))
			}
		}
	}
}

func (r *Registry) expired(s *session) bool {
	return r.ttl > 0 && r.now().Sub(s.lastSeen) > r.ttl
}
