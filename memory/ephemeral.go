package memory

import (
	"slices"
	"sync"

	"github.com/modelrelay/ag/messages"
)

// Ephemeral is an in-process store. It doubles as the read-through cache of
// the SQLite store.
type Ephemeral struct {
	mu       sync.RWMutex
	messages map[string][]messages.Message
	usage    map[string]messages.Usage
}

var _ Store = (*Ephemeral)(nil)

// NewEphemeral returns an empty in-process store.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{
		messages: make(map[string][]messages.Message),
		usage:    make(map[string]messages.Usage),
	}
}

// Messages returns the session's history. The slice is a copy; the messages
// themselves are shared and immutable.
func (e *Ephemeral) Messages(sessionID string) ([]messages.Message, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.messages[sessionID]), nil
}

// Usage returns the session's accumulated usage, zero for unknown sessions.
func (e *Ephemeral) Usage(sessionID string) (messages.Usage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.usage[sessionID], nil
}

// Extend appends messages and adds usage to the session.
func (e *Ephemeral) Extend(sessionID string, msgs []messages.Message, usage messages.Usage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages[sessionID] = append(e.messages[sessionID], msgs...)
	e.usage[sessionID] = e.usage[sessionID].Add(usage)
	return nil
}
