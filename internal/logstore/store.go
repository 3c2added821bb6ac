// Package logstore keeps calculation logs between the calculation that
// produces them and the override requests and exports that follow.
package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// Store persists calculation logs by ID.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.CalculationLog, error)
	Put(ctx context.Context, log *domain.CalculationLog) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Update loads the log, applies fn and writes the result back. Updates
	// of the same log never interleave. When fn returns an error nothing is
	// written and the error is returned unchanged.
	Update(ctx context.Context, id uuid.UUID, fn func(*domain.CalculationLog) error) error
}

// MemoryStore keeps logs in process memory. Logs are stored and returned as
// deep copies so callers cannot mutate stored state.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.CalculationLog, error) {
	s.mu.Lock()
	data, ok := s.logs[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.NotFound("logstore.memory.get", "calculation log", id.String())
	}
	return decode(data)
}

func (s *MemoryStore) Put(_ context.Context, log *domain.CalculationLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode calculation log: %w", err)
	}
	s.mu.Lock()
	s.logs[log.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.logs, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(*domain.CalculationLog) error) error {
	const op = "logstore.memory.update"

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.logs[id]
	if !ok {
		return domain.NotFound(op, "calculation log", id.String())
	}
	log, err := decode(data)
	if err != nil {
		return err
	}
	if err := fn(log); err != nil {
		return err
	}
	out, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode calculation log: %w", err)
	}
	s.logs[id] = out
	return nil
}

func decode(data []byte) (*domain.CalculationLog, error) {
	var log domain.CalculationLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode calculation log: %w", err)
	}
	return &log, nil
}
