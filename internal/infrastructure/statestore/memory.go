package statestore

import (
	"context"
	"sync"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var _ ports.StateStore = (*MemoryStore)(nil)

// DefaultCapacity bounds how many pending installs a MemoryStore tracks. The
// least recently issued state is evicted first.
const DefaultCapacity = 10_000

// MemoryStore keeps states in process. Only suitable for a single instance.
type MemoryStore struct {
	// mu makes the lookup and removal in Consume atomic.
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states *expirable.LRU[string, domain.OAuthState]
}

// NewMemoryStore creates an in-process store whose states expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, DefaultCapacity)
}

func newMemoryStore(ttl time.Duration, capacity int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:    ttl,
		now:    time.Now,
		states: expirable.NewLRU[string, domain.OAuthState](capacity, nil, ttl),
	}
}

func (m *MemoryStore) Issue(_ context.Context, shop string) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states.Add(shop, domain.OAuthState{Shop: shop, State: state, ExpiresAt: m.now().Add(m.ttl)})
	return state, nil
}

func (m *MemoryStore) Consume(_ context.Context, shop, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved, ok := m.states.Peek(shop)
	if !ok {
		return false, nil
	}
	m.states.Remove(shop)
	if saved.Expired(m.now()) {
		return false, nil
	}
	return statesEqual(saved.State, state), nil
}

// Len reports how many states are held.
func (m *MemoryStore) Len() int {
	return m.states.Len()
}
