package store

import (
	"sync"
	"time"
)

type entry struct {
	turns    History
	lastUsed time.Time
}

// MemoryStore holds histories for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	senders map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		senders: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetOrInit(sender string) (History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.senders[sender]
	if !ok {
		e = &entry{turns: newHistory()}
		s.senders[sender] = e
	}
	e.lastUsed = s.now()
	return append(History(nil), e.turns...), nil
}

// Append adds a turn. A sender that was never initialized gets an entry
// holding only this turn.
func (s *MemoryStore) Append(sender string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.senders[sender]
	if !ok {
		e = &entry{}
		s.senders[sender] = e
	}
	e.turns = append(e.turns, Turn{Role: role, Content: content})
	e.lastUsed = s.now()
	return nil
}

func (s *MemoryStore) Truncate(sender string, maxLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.senders[sender]; ok {
		e.turns = tail(e.turns, maxLen)
	}
	return nil
}

// History returns a copy of the sender's turns without initializing them.
func (s *MemoryStore) History(sender string) History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.senders[sender]
	if !ok {
		return nil
	}
	return append(History(nil), e.turns...)
}

// Len reports how many senders are tracked.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.senders)
}

func (s *MemoryStore) Evict(maxIdle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sender, e := range s.senders {
		if now.Sub(e.lastUsed) > maxIdle {
			delete(s.senders, sender)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
