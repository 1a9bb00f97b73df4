package presence

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

// Session is a live connection able to receive events. The websocket
// gateway provides the concrete implementation; tests substitute fakes.
type Session interface {
	Send(ev models.Event) error
}

var ErrInvalidKind = errors.New("presence: invalid actor kind")

type actorKey struct {
	id   string
	kind models.ActorKind
}

// Registry maps (actor id, kind) to the actor's current session. An actor
// has at most one session; announcing again overwrites the previous entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[actorKey]Session
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{sessions: make(map[actorKey]Session), logger: logger}
}

func (r *Registry) Announce(id string, kind models.ActorKind, s Session) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[actorKey{id, kind}] = s
	return nil
}

func (r *Registry) Resolve(id string, kind models.ActorKind) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[actorKey{id, kind}]
	return s, ok
}

// Withdraw removes the actor's entry. When owner is non-nil the entry is
// only removed if owner still holds it, so a stale connection tearing down
// after a reconnect cannot evict the new session. Removing an absent entry
// is a no-op.
func (r *Registry) Withdraw(id string, kind models.ActorKind, owner Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := actorKey{id, kind}
	if owner != nil {
		if cur, ok := r.sessions[key]; ok && cur != owner {
			return
		}
	}
	delete(r.sessions, key)
}

// Deliver sends an event to the actor if connected. Absent or failing
// targets are logged and dropped; the caller never sees an error.
func (r *Registry) Deliver(id string, kind models.ActorKind, ev models.Event) bool {
	s, ok := r.Resolve(id, kind)
	if !ok {
		observability.EventsDropped.Inc()
		r.logger.Debug("event dropped, actor offline", "actor_id", id, "kind", string(kind), "event", ev.Name)
		return false
	}
	if err := s.Send(ev); err != nil {
		observability.EventsDropped.Inc()
		r.logger.Warn("event send failed", "actor_id", id, "kind", string(kind), "event", ev.Name, "error", err)
		return false
	}
	return true
}
