package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kurisu/squadagent/internal/security"
)

// DefaultCacheSize is the number of live sessions kept in memory.
const DefaultCacheSize = 256

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	CacheSize int
	Logger    *slog.Logger
	Audit     *security.AuditLogger
}

// Manager hands out sessions. Live sessions, with their sandbox
// environments, are kept in an LRU cache; a miss loads the step log from
// the store. Turns on one session are serialized through Lock within this
// process only: two processes sharing a store race, and the last Save wins.
type Manager struct {
	store  Store
	cache  *lru.Cache[string, *Session]
	lanes  *laneLock
	logger *slog.Logger
	audit  *security.AuditLogger
	now    func() time.Time
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, cfg ManagerConfig) (*Manager, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, fmt.Errorf("session: creating cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:  store,
		cache:  cache,
		lanes:  newLaneLock(),
		logger: logger,
		audit:  cfg.Audit,
		now:    time.Now,
	}, nil
}

// Lock serializes turns on id. The returned function releases the lock.
func (m *Manager) Lock(id string) (unlock func()) {
	m.lanes.acquire(id)
	return func() { m.lanes.release(id) }
}

// Get returns the session stored under id, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if s, ok := m.cache.Get(id); ok {
		return s, nil
	}
	blob, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %w", ErrSessionStorage, id, err)
	}
	s, err := unmarshal(blob)
	if err != nil {
		return nil, err
	}
	s.ID = id
	m.cache.Add(id, s)
	return s, nil
}

// Open returns the session for id, creating it when it does not exist.
// An empty id or NewID allocates a fresh random id.
func (m *Manager) Open(ctx context.Context, id string) (s *Session, created bool, err error) {
	if id == "" || id == NewID {
		id = uuid.NewString()
	} else {
		s, err = m.Get(ctx, id)
		if err == nil {
			return s, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	s = newSession(id, m.now())
	m.cache.Add(id, s)
	m.logger.Info("session created", "session_id", id)
	m.audit.Log(security.AuditEvent{Type: security.EventSessionCreate, SessionID: id})
	return s, true, nil
}

// Save persists s and marks it active.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.LastActiveAt = m.now()
	blob, err := s.marshal()
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrSessionStorage, s.ID, err)
	}
	if err := m.store.Save(ctx, s.ID, blob); err != nil {
		return fmt.Errorf("%w: saving %s: %w", ErrSessionStorage, s.ID, err)
	}
	m.cache.Add(s.ID, s)
	return nil
}

// Reset clears the log and environment of s, keeping its id.
func (m *Manager) Reset(ctx context.Context, s *Session) error {
	s.Log.Turns = nil
	s.Env.Reset()
	return m.Save(ctx, s)
}

// Delete removes id from the cache and the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.cache.Remove(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrSessionStorage, id, err)
	}
	m.audit.Log(security.AuditEvent{Type: security.EventSessionDelete, SessionID: id})
	return nil
}

// Prune deletes sessions idle for longer than maxIdle and returns how many
// were removed.
func (m *Manager) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: listing sessions: %w", ErrSessionStorage, err)
	}
	now := m.now()
	pruned := 0
	for _, e := range entries {
		if now.Sub(e.UpdatedAt) <= maxIdle {
			continue
		}
		if s, ok := m.cache.Peek(e.Key); ok && now.Sub(s.LastActiveAt) <= maxIdle {
			continue
		}
		if err := m.Delete(ctx, e.Key); err != nil {
			return pruned, err
		}
		pruned++
	}
	if pruned > 0 {
		m.logger.Info("sessions pruned", "count", pruned, "max_idle", maxIdle)
	}
	return pruned, nil
}

// List returns every stored session.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %w", ErrSessionStorage, err)
	}
	return entries, nil
}

// Len returns the number of live sessions in the cache.
func (m *Manager) Len() int {
	return m.cache.Len()
}
