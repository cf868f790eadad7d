package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// MemoryStore — in-memory кэш на LRU с TTL.
// Размер ограничен числом снимков (maxSessions × число кэшируемых видов),
// TTL равен времени жизни сессии: снимок не переживает сессию.
type MemoryStore struct {
	// mu делает сравнение поколения и запись снимка одной операцией.
	mu   sync.Mutex
	lru  *expirable.LRU[string, *Listing]
	gens *expirable.LRU[string, uint64]
}

// NewMemoryStore создаёт in-memory кэш.
// maxSessions — максимальное число сессий, для которых хранятся снимки.
// sessionTTL — время жизни сессии.
func NewMemoryStore(maxSessions int, sessionTTL time.Duration) *MemoryStore {
	size := maxSessions * len(CachedKinds)
	return &MemoryStore{
		lru:  expirable.NewLRU[string, *Listing](size, nil, sessionTTL),
		gens: expirable.NewLRU[string, uint64](size, nil, sessionTTL),
	}
}

func memoryKey(sessionID string, kind airtable.Kind) string {
	return sessionID + "\x00" + string(kind)
}

// ReadListing возвращает копию снимка или ErrMiss.
func (m *MemoryStore) ReadListing(_ context.Context, sessionID string, kind airtable.Kind) (*Listing, error) {
	l, ok := m.lru.Get(memoryKey(sessionID, kind))
	if !ok {
		miss(kind)
		return nil, ErrMiss
	}
	hit(kind)
	return cloneListing(l), nil
}

// WriteListing сохраняет копию снимка.
func (m *MemoryStore) WriteListing(_ context.Context, sessionID string, listing *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Add(memoryKey(sessionID, listing.Kind), cloneListing(listing))
	return nil
}

// Generation возвращает поколение ключа, 0 — инвалидаций не было.
func (m *MemoryStore) Generation(_ context.Context, sessionID string, kind airtable.Kind) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gen, _ := m.gens.Peek(memoryKey(sessionID, kind))
	return gen, nil
}

// WriteListingAt сохраняет копию снимка, если поколение не изменилось.
func (m *MemoryStore) WriteListingAt(_ context.Context, sessionID string, listing *Listing, gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(sessionID, listing.Kind)
	if cur, _ := m.gens.Peek(key); cur != gen {
		return ErrStale
	}
	m.lru.Add(key, cloneListing(listing))
	return nil
}

// Invalidate удаляет снимок.
func (m *MemoryStore) Invalidate(_ context.Context, sessionID string, kind airtable.Kind) error {
	m.mu.Lock()
	m.bump(memoryKey(sessionID, kind))
	m.mu.Unlock()

	invalidated(kind)
	return nil
}

// Purge удаляет все снимки сессии.
func (m *MemoryStore) Purge(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, kind := range CachedKinds {
		m.lru.Remove(memoryKey(sessionID, kind))
	}
	return nil
}

// bump увеличивает поколение и удаляет снимок. Вызывается под mu.
func (m *MemoryStore) bump(key string) {
	gen, _ := m.gens.Peek(key)
	m.gens.Add(key, gen+1)
	m.lru.Remove(key)
}

// Len возвращает число хранимых снимков.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
