package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	got    []Envelope
	refuse bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{id: uuid.NewString()}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.got = append(f.got, env)
	return true
}

func (f *fakeChannel) received() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.got))
	copy(out, f.got)
	return out
}

func TestRegistryLastWriterWins(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	first, second := newFakeChannel(), newFakeChannel()

	assert.Nil(t, reg.Register(userID, first))
	assert.Equal(t, first, reg.Register(userID, second))

	ch, ok := reg.Lookup(userID)
	require.True(t, ok)
	assert.Equal(t, second.ID(), ch.ID())
}

func TestRegistryReleaseIgnoresStaleChannel(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	first, second := newFakeChannel(), newFakeChannel()
	reg.Register(userID, first)
	reg.Register(userID, second)

	assert.False(t, reg.Release(userID, first.ID()))
	_, ok := reg.Lookup(userID)
	assert.True(t, ok)

	assert.True(t, reg.Release(userID, second.ID()))
	_, ok = reg.Lookup(userID)
	assert.False(t, ok)
}

func TestRegistryUnregisterMissingIsNoop(t *testing.T) {
	reg := NewRegistry()
	assert.NotPanics(t, func() { reg.Unregister(uuid.New()) })
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := uuid.New()
			ch := newFakeChannel()
			reg.Register(userID, ch)
			_, _ = reg.Lookup(userID)
			reg.Release(userID, ch.ID())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Len())
}

func TestPresenceOnlineIsSorted(t *testing.T) {
	p := NewPresence()
	a, b := uuid.New(), uuid.New()
	p.Join(a)
	p.Join(b)
	p.Join(a)

	online := p.Online()
	require.Len(t, online, 2)
	assert.True(t, online[0] < online[1])

	p.Leave(a)
	assert.Equal(t, OnlineUsers{b.String()}, p.Online())
}
