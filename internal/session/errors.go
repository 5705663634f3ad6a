// Package session keeps agent sessions: the step log and sandbox
// environment of each conversation. Live sessions are cached in memory and
// persisted to a Store as JSON blobs after every turn.
package session

import "errors"

// Sentinel errors for session operations.
var (
	// ErrNotFound indicates no session is stored under the key.
	ErrNotFound = errors.New("session: not found")

	// ErrSessionStorage indicates the store failed to load or save a
	// session. It is not recoverable within a run.
	ErrSessionStorage = errors.New("session: storage error")

	// ErrInvalidID indicates a session ID that cannot be used as a key.
	ErrInvalidID = errors.New("session: invalid id")
)
