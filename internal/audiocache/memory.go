package audiocache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

var _ Cache = (*Memory)(nil)

const (
	// DefaultMaxEntries bounds a [Memory] cache when no size is configured.
	DefaultMaxEntries = 512

	// DefaultTTL is how long a clip stays valid when no TTL is configured.
	DefaultTTL = 7 * 24 * time.Hour
)

// MemoryOption configures a [Memory] cache.
type MemoryOption func(*Memory)

// WithMaxEntries sets the number of clips kept before the least recently
// used one is evicted. Non-positive values are ignored.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithTTL sets how long a clip stays valid. Zero disables expiry.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl >= 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// Memory is an in-process LRU cache with per-entry expiry.
type Memory struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
}

type memoryItem struct {
	key   string
	entry Entry
}

// NewMemory creates an empty [Memory] cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		maxEntries: DefaultMaxEntries,
		ttl:        DefaultTTL,
		now:        time.Now,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements [Cache]. Expired entries are dropped on access.
func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return Entry{}, ErrMiss
	}
	item := el.Value.(*memoryItem)
	if m.expired(item.entry) {
		m.removeElement(el)
		return Entry{}, ErrMiss
	}
	m.order.MoveToFront(el)
	return cloneEntry(item.entry), nil
}

// Put implements [Cache].
func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e = cloneEntry(e)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem).entry = e
		m.order.MoveToFront(el)
		return nil
	}
	m.items[key] = m.order.PushFront(&memoryItem{key: key, entry: e})
	for m.order.Len() > m.maxEntries {
		m.removeElement(m.order.Back())
	}
	return nil
}

// Ping implements [Cache]. A memory cache is always reachable.
func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) expired(e Entry) bool {
	return m.ttl > 0 && m.now().Sub(e.CreatedAt) >= m.ttl
}

func (m *Memory) removeElement(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}

// cloneEntry copies the audio bytes so callers cannot mutate stored clips.
func cloneEntry(e Entry) Entry {
	if e.Data != nil {
		e.Data = append([]byte(nil), e.Data...)
	}
	return e
}
