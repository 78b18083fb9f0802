package uuidx

import "github.com/google/uuid"

// New returns a version 7 UUID. It panics when the system entropy source
// fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a version 7 UUID in its canonical string form. V7 ids
// sort by creation time, which keeps session ids ordered in storage.
func NewString() string {
	return New().String()
}
