package store

import "time"

// MaxTurns is the number of turns kept per sender after each exchange.
const MaxTurns = 10

// SystemPrompt seeds every new history.
const SystemPrompt = "You are a helpful assistant."

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in a sender's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the chronological list of turns for one sender.
type History []Turn

// Last returns the most recent turn, or false when the history is empty.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// Store keeps per-sender conversation history.
//
// Concurrent exchanges for the same sender can still interleave appends;
// callers serialize them with session.Manager.
type Store interface {
	GetOrInit(sender string) (History, error)
	Append(sender string, role Role, content string) error
	Truncate(sender string, maxLen int) error
	// Evict drops senders whose history was not touched within maxIdle.
	Evict(maxIdle time.Duration) (int, error)
	Close() error
}

func newHistory() History {
	return History{{Role: RoleSystem, Content: SystemPrompt}}
}

// tail keeps the newest maxLen turns. The returned slice never aliases h.
func tail(h History, maxLen int) History {
	if maxLen <= 0 {
		maxLen = MaxTurns
	}
	if len(h) > maxLen {
		h = h[len(h)-maxLen:]
	}
	return append(History(nil), h...)
}
