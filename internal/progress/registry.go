// Package progress holds the live state of in-flight upload batches and fans
// every state change out to subscribed clients.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/bulk"
)

// Registry owns all live progress sessions. It is the only holder of session
// state; handlers and the uploader receive it by injection, there is no
// package-level map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	grace    time.Duration
	logger   *slog.Logger
}

// NewRegistry creates a registry whose terminal sessions stay resolvable for
// the given grace period before eviction. The grace period must be generous
// enough that a subscriber connecting concurrently with batch completion
// still receives the final snapshot; an evicted session is a hard miss.
func NewRegistry(grace time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		grace:    grace,
		logger:   logger,
	}
}

// Create registers a new session for a batch of the given size and returns
// it. The session id is opaque to callers.
func (r *Registry) Create(total int) *Session {
	s := newSession(uuid.New().String(), total)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("progress session created",
		slog.String("session_id", s.ID),
		slog.Int("total", total))
	return s
}

// Get looks up a live session. A session evicted after its grace period is
// indistinguishable from one that never existed.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Subscribe attaches a new subscriber to a session, delivering the connected
// snapshot synchronously. Returns false if the session is unknown or already
// evicted.
func (r *Registry) Subscribe(id string) (*Subscriber, bool) {
	s, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return s.subscribe(), true
}

// Complete marks the session terminal, broadcasts the complete event with the
// full batch outcome to every subscriber, and schedules eviction after the
// grace period.
func (r *Registry) Complete(id string, outcome *bulk.Outcome) {
	s, ok := r.Get(id)
	if !ok {
		return
	}
	s.finish(outcome)

	r.logger.Info("progress session finished",
		slog.String("session_id", id),
		slog.Int("succeeded", len(outcome.Succeeded)),
		slog.Int("failed", len(outcome.Failed)),
		slog.Float64("elapsed_seconds", outcome.ElapsedSeconds))

	time.AfterFunc(r.grace, func() { r.evict(id) })
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.closeSubscribers()
	r.logger.Info("progress session evicted", slog.String("session_id", id))
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
