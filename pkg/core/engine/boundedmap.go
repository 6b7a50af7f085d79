package engine

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// boundedMap is a user-keyed LRU map with a hard cap; evictions are logged so
// surprising data loss stays visible.
type boundedMap[V any] struct {
	name string
	cap  int

	mu      sync.Mutex
	entries map[string]V
	order   []string // LRU order, oldest first
}

func newBoundedMap[V any](name string, cap int) *boundedMap[V] {
	if cap <= 0 {
		cap = 500
	}
	return &boundedMap[V]{
		name:    name,
		cap:     cap,
		entries: make(map[string]V),
	}
}

func (m *boundedMap[V]) get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if ok {
		m.touchLocked(key)
	}
	return v, ok
}

func (m *boundedMap[V]) set(key string, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.cap && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
		log.Debug().Str("map", m.name).Str("evicted", oldest).Msg("bounded map eviction")
	}
	m.entries[key] = v
	m.touchLocked(key)
}

func (m *boundedMap[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// touchLocked moves key to the most-recent end, appending if absent.
func (m *boundedMap[V]) touchLocked(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append(m.order, key)
}
