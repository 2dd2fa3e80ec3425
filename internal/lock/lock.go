// Package lock serialises access to wallet and position aggregates.
//
// Every mutating section takes the owner's wallet lock before the position
// lock. Locks are taken before the database transaction begins so a caller
// never holds a connection while waiting on a mutex.
package lock

import (
	"strings"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Manager hands out one mutex per aggregate key and drops it once unused.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

func walletKey(owner, currency string) string {
	return "wallet:" + owner + ":" + strings.ToUpper(currency)
}

func positionKey(owner, asset string) string {
	return "position:" + owner + ":" + strings.ToUpper(asset)
}

// LockWallet blocks until the (owner, currency) wallet is held.
func (m *Manager) LockWallet(owner, currency string) func() {
	return m.lock(walletKey(owner, currency))
}

// LockPosition blocks until the (owner, asset) position is held.
func (m *Manager) LockPosition(owner, asset string) func() {
	return m.lock(positionKey(owner, asset))
}

// Acquire takes the wallet lock and then the position lock. Either part may
// be skipped by passing an empty currency or asset. The returned func
// releases in reverse order.
func (m *Manager) Acquire(owner, currency, asset string) func() {
	var unlocks []func()
	if currency != "" {
		unlocks = append(unlocks, m.LockWallet(owner, currency))
	}
	if asset != "" {
		unlocks = append(unlocks, m.LockPosition(owner, asset))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// Held reports how many keys currently have holders or waiters.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
