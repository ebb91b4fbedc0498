// Package memory provides a process-local thread store used in tests
// and single-node deployments without external storage.
package memory

import (
	"context"
	"sync"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

type Store struct {
	mu      sync.RWMutex
	threads map[string]*thread
}

type thread struct {
	mu    sync.Mutex
	turns []domain.ConversationTurn
}

func NewStore() *Store {
	return &Store{threads: make(map[string]*thread)}
}

func (s *Store) History(_ context.Context, threadID string) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	th, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return []domain.ConversationTurn{}, nil
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	out := make([]domain.ConversationTurn, len(th.turns))
	copy(out, th.turns)
	return out, nil
}

// AppendTurn serializes writers on the same thread only; appends to
// different threads proceed independently.
func (s *Store) AppendTurn(_ context.Context, threadID string, turn domain.ConversationTurn) error {
	s.mu.Lock()
	th, ok := s.threads[threadID]
	if !ok {
		th = &thread{}
		s.threads[threadID] = th
	}
	s.mu.Unlock()

	th.mu.Lock()
	th.turns = append(th.turns, turn)
	th.mu.Unlock()
	return nil
}
