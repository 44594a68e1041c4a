package evaluator

import (
	"fmt"
	"sync"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// Store is the collaborator-side session registry. The controller treats
// persistence as this collaborator's concern; the LLM-backed client keeps
// sessions in memory here so answers can be aggregated at EndInterview and
// attempts can be re-loaded mid-interview.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*types.InterviewSession
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*types.InterviewSession)}
}

// Put registers or replaces a session.
func (s *Store) Put(sess *types.InterviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (*types.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("evaluator: unknown session %q", id)
	}
	return sess, nil
}

// Update applies fn to the session with the given ID under the store lock.
func (s *Store) Update(id string, fn func(*types.InterviewSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("evaluator: unknown session %q", id)
	}
	return fn(sess)
}
