package session

import (
	"sync"
	"time"
)

// Manager serializes exchanges per sender so two messages from the same
// sender cannot interleave their history updates. Different senders run
// in parallel.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*senderLock
	now   func() time.Time
}

type senderLock struct {
	mu       sync.Mutex
	lastUsed time.Time
	holders  int
}

func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*senderLock),
		now:   time.Now,
	}
}

// WithLock runs fn while holding the sender's lock.
func (m *Manager) WithLock(sender string, fn func() error) error {
	m.mu.Lock()
	sl, ok := m.locks[sender]
	if !ok {
		sl = &senderLock{}
		m.locks[sender] = sl
	}
	sl.holders++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		sl.holders--
		sl.lastUsed = m.now()
		m.mu.Unlock()
	}()

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn()
}

// Cleanup removes locks idle for longer than maxAge. Locks that are held
// or waited on are never removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for sender, sl := range m.locks {
		if sl.holders == 0 && now.Sub(sl.lastUsed) > maxAge {
			delete(m.locks, sender)
			removed++
		}
	}
	return removed
}

// Len reports how many sender locks are tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
