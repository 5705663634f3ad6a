package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/steplog"
)

// NewID is the path segment clients use to ask for a fresh session.
const NewID = "new"

var validID = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidID reports whether id can be used as a session key.
func ValidID(id string) bool {
	return id != NewID && validID.MatchString(id)
}

// Session is one conversation. Env holds live Starlark values and is never
// persisted; a session loaded from the store starts with an empty
// environment but keeps its step log.
type Session struct {
	ID           string               `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	LastActiveAt time.Time            `json:"last_active_at"`
	Log          *steplog.Log         `json:"log"`
	Env          *sandbox.Environment `json:"-"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		Log:          &steplog.Log{},
		Env:          sandbox.NewEnvironment(),
	}
}

func (s *Session) marshal() ([]byte, error) {
	return json.Marshal(s)
}

func unmarshal(blob []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding session: %w", ErrSessionStorage, err)
	}
	if s.Log == nil {
		s.Log = &steplog.Log{}
	}
	s.Env = sandbox.NewEnvironment()
	return &s, nil
}

// Entry describes a stored session.
type Entry struct {
	Key       string
	UpdatedAt time.Time
}

// Store persists session blobs by key. Implementations must be safe for
// concurrent use. Concurrent Saves to the same key are last-write-wins.
type Store interface {
	// Load returns the blob stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save stores blob under key, replacing any previous value.
	Save(ctx context.Context, key string, blob []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every stored key with its last update time.
	List(ctx context.Context) ([]Entry, error)
}
