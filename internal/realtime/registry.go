package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is an open push connection of one user.
type Channel interface {
	ID() string
	// Send enqueues without blocking and reports whether the envelope was accepted.
	Send(Envelope) bool
}

// Registry maps a user to at most one open channel. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[uuid.UUID]Channel)}
}

// Register maps userID to ch, replacing and returning any previous channel.
func (r *Registry) Register(userID uuid.UUID, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.channels[userID]
	r.channels[userID] = ch
	return previous
}

func (r *Registry) Unregister(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, userID)
}

// Release removes the mapping only if it still points at channelID.
func (r *Registry) Release(userID uuid.UUID, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.channels[userID]
	if !ok || current.ID() != channelID {
		return false
	}
	delete(r.channels, userID)
	return true
}

func (r *Registry) Lookup(userID uuid.UUID) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[userID]
	return ch, ok
}

func (r *Registry) Users() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(r.channels))
	for userID := range r.channels {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
