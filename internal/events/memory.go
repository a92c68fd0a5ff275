package events

import (
	"context"
	"sync"

	"trading-core/internal/domain"
)

// MemorySink captures published events in order. Used in tests and embedded
// setups that drain events programmatically.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.Event

	// FailWith, when set, makes Publish fail without recording. Lets tests
	// exercise sink outages.
	FailWith error
}

// NewMemorySink creates an empty capture sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends the batch.
func (s *MemorySink) Publish(_ context.Context, batch []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.events = append(s.events, batch...)
	return nil
}

// Events returns a snapshot of everything published so far.
func (s *MemorySink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]domain.Event, len(s.events))
	copy(cp, s.events)
	return cp
}

// Reset clears the captured events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
