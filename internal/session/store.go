// Package session provides the concurrency-safe registry of correction
// sessions. All mutation goes through Update, which holds a per-session
// write lock across the whole read-modify-write, so two concurrent updates
// against the same session can never lose writes.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/mend/internal/types"
)

// Store is a concurrency-safe registry of correction sessions keyed by id.
// It hands out deep copies: callers never hold a reference to the stored
// value and cannot mutate it in place.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.CorrectionSession

	// lockMu guards writeLocks; each session gets its own mutex so updates
	// to different sessions never contend with each other
	lockMu     sync.Mutex
	writeLocks map[string]*sync.Mutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*types.CorrectionSession),
		writeLocks: make(map[string]*sync.Mutex),
	}
}

// Create registers a new active session for a task. The config is validated
// and the session starts with no errors or attempts.
func (s *Store) Create(taskID string, config types.CorrectionConfig) (*types.CorrectionSession, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid correction config: %w", err)
	}

	session := &types.CorrectionSession{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Status:    types.SessionActive,
		Config:    config,
		CreatedAt: time.Now(),
		Version:   1,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session.Clone(), nil
}

// Get returns a copy of the session, or false if it does not exist.
func (s *Store) Get(id string) (*types.CorrectionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// ListActive returns copies of all sessions that have not reached a
// terminal status, ordered by creation time.
func (s *Store) ListActive() []*types.CorrectionSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*types.CorrectionSession
	for _, session := range s.sessions {
		if session.Status == types.SessionActive {
			active = append(active, session.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

// All returns copies of every session, active and terminated.
func (s *Store) All() []*types.CorrectionSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.CorrectionSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies fn to a copy of the session and commits the result under
// the session's write lock. The whole read-modify-write is exclusive per
// session id, so a concurrent Update on the same session observes the
// committed result, never a stale snapshot. The committed Version
// increments by exactly one per successful Update.
//
// If fn returns an error nothing is committed. Returns a copy of the
// committed session.
func (s *Store) Update(id string, fn func(*types.CorrectionSession) error) (*types.CorrectionSession, error) {
	lock := s.writeLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	s.mu.Lock()
	s.sessions[id] = next
	s.mu.Unlock()

	return next.Clone(), nil
}

// End moves a session to its terminal status: completed on success,
// failed otherwise. Ending an already-terminated session is a no-op that
// returns the session as-is. Returns false if the session does not exist.
func (s *Store) End(id string, success bool) (*types.CorrectionSession, bool) {
	updated, err := s.Update(id, func(session *types.CorrectionSession) error {
		if session.Status.IsTerminal() {
			return nil
		}
		if success {
			session.Status = types.SessionCompleted
		} else {
			session.Status = types.SessionFailed
		}
		return nil
	})
	if err != nil {
		return nil, false
	}
	return updated, true
}

// Cancel marks an active session cancelled. Terminal sessions are left
// untouched. Returns false if the session does not exist.
func (s *Store) Cancel(id string) (*types.CorrectionSession, bool) {
	updated, err := s.Update(id, func(session *types.CorrectionSession) error {
		if session.Status.IsTerminal() {
			return nil
		}
		session.Status = types.SessionCancelled
		return nil
	})
	if err != nil {
		return nil, false
	}
	return updated, true
}

// writeLock returns the per-session mutex, creating it on first use.
func (s *Store) writeLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.writeLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.writeLocks[id] = lock
	}
	return lock
}
