package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Manager keeps one Pool per database id.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// Add registers p under p.ID. Ids must be unique.
func (m *Manager) Add(p *Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[p.ID]; exists {
		return fmt.Errorf("database %s already registered", p.ID)
	}
	m.pools[p.ID] = p
	return nil
}

// Pool returns the pool registered under id.
func (m *Manager) Pool(id string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	return p, ok
}

// IDs returns the registered database ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for id, p := range m.pools {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database %s: %w", id, err))
		}
		delete(m.pools, id)
	}
	return errors.Join(errs...)
}
