// Package store holds active conversation state in memory. Sessions live
// only for the duration of the process; durability happens at explicit
// session end via the archiver.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/nbarki/shipdesk/internal/observability"
	"github.com/nbarki/shipdesk/pkg/persona"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned when an operation references an id with
// no active session.
var ErrSessionNotFound = errors.New("session not found")

// Session is one active conversation.
//
// Invariant: TurnCount == len(Transcript) at all times; both change
// together in RecordTurn.
type Session struct {
	ID         string
	TurnCount  int
	Transcript []persona.Exchange
	Facts      *persona.Facts
	CreatedAt  time.Time
	LastActive time.Time
}

// FactsFunc generates the fixed hidden fact set for a new session.
// A nil FactsFunc disables hidden facts entirely.
type FactsFunc func() *persona.Facts

// Store is an in-memory session registry keyed by externally supplied id.
// Mutations to the same id must be serialized by holding the mutex from
// Acquire across the whole turn; different ids never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	factsFn  FactsFunc
	logger   zerolog.Logger
}

// New creates a new session store
func New(factsFn FactsFunc, logger zerolog.Logger) *Store {
	observability.EnsureRegistered()

	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		factsFn:  factsFn,
		logger:   logger,
	}
}

// Acquire returns the per-id mutex serializing all work for a session.
// Callers hold it across prompt construction, the provider call and
// RecordTurn, so the history for turn N always reflects exactly the
// first N-1 recorded turns.
//
// The mutex for an id lives for the rest of the process, surviving
// eviction: a caller queued on it while the session is removed and a
// caller arriving afterwards must still serialize on the same mutex.
func (s *Store) Acquire(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[id]; ok {
		return lock
	}

	lock := &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

// GetOrCreate returns the session for id, creating it on first reference.
// New sessions start at turn zero with an empty transcript and, when the
// store has a facts generator, a fixed fact set that is never regenerated.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastActive = time.Now()
		return sess
	}

	now := time.Now()
	sess := &Session{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
	}
	if s.factsFn != nil {
		sess.Facts = s.factsFn()
	}
	s.sessions[id] = sess

	observability.RecordSessionCreated()
	observability.SetActiveSessions(len(s.sessions))
	s.logger.Info().Str("session_id", id).Msg("Session created")

	return sess
}

// Peek returns the session for id without creating one. Callers that
// mutate the result must hold the Acquire lock for the id.
func (s *Store) Peek(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

// RecordTurn appends a completed exchange and bumps the turn counter in
// one step.
func (s *Store) RecordTurn(id, user, assistant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Transcript = append(sess.Transcript, persona.Exchange{
		User:      user,
		Assistant: assistant,
	})
	sess.TurnCount++
	sess.LastActive = time.Now()

	s.logger.Debug().
		Str("session_id", id).
		Int("turn", sess.TurnCount).
		Msg("Turn recorded")

	return nil
}

// Remove evicts the session for id. A later GetOrCreate for the same id
// starts a brand-new session with no memory of prior turns. The id's
// mutex is deliberately left in place; dropping it here would hand a
// concurrently queued caller and a later Acquire two different mutexes
// for the same id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}

	delete(s.sessions, id)
	observability.SetActiveSessions(len(s.sessions))

	s.logger.Info().Str("session_id", id).Msg("Session evicted")
}

// List returns the ids of all active sessions
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of active sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
