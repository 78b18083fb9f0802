package memory

import "github.com/modelrelay/ag/messages"

// Store is the persistence contract for conversation sessions. Unknown
// session ids are not an error: Messages returns an empty history and Usage
// a zero value.
type Store interface {
	// Messages returns the session's history in insertion order.
	Messages(sessionID string) ([]messages.Message, error)

	// Usage returns the session's accumulated usage.
	Usage(sessionID string) (messages.Usage, error)

	// Extend appends messages to the session and adds the invocation's usage
	// to the session total, atomically where the backend allows.
	Extend(sessionID string, msgs []messages.Message, usage messages.Usage) error
}
