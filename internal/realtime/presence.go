package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Presence is the set of users who joined a conversation. Being connected does not imply presence.
type Presence struct {
	mu    sync.RWMutex
	users map[uuid.UUID]struct{}
}

func NewPresence() *Presence {
	return &Presence{users: make(map[uuid.UUID]struct{})}
}

func (p *Presence) Join(userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = struct{}{}
}

func (p *Presence) Leave(userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
}

// Online returns the present user ids sorted for stable output.
func (p *Presence) Online() OnlineUsers {
	p.mu.RLock()
	defer p.mu.RUnlock()
	online := make([]string, 0, len(p.users))
	for userID := range p.users {
		online = append(online, userID.String())
	}
	sort.Strings(online)
	return OnlineUsers(online)
}
