package deck

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory CardStore and BankStore. It preserves
// insertion order per subject and is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[string][]Card     // subject -> ordered cards
	banks map[string][]QuizItem // subject -> quiz bank
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards: make(map[string][]Card),
		banks: make(map[string][]QuizItem),
	}
}

func (s *MemoryStore) Get(_ context.Context, subject, id string) (Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cards[subject] {
		if c.ID == id {
			return c, nil
		}
	}
	return Card{}, fmt.Errorf("get card %s/%s: %w", subject, id, ErrNotFound)
}

func (s *MemoryStore) ListBySubject(_ context.Context, subject string) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Card{}, s.cards[subject]...), nil
}

func (s *MemoryStore) Put(_ context.Context, card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.cards[card.Subject]
	for i, c := range list {
		if c.ID == card.ID {
			list[i] = card
			return nil
		}
	}
	s.cards[card.Subject] = append(list, card)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, card Card, prevReviewed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.cards[card.Subject]
	for i, c := range list {
		if c.ID != card.ID {
			continue
		}
		if !c.LastReviewed.Equal(prevReviewed) {
			return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrConflict)
		}
		list[i] = card
		return nil
	}
	return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrNotFound)
}

func (s *MemoryStore) ReplaceAll(_ context.Context, subject string, cards []Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cards[subject] = append([]Card{}, cards...)
	return nil
}

func (s *MemoryStore) GetBank(_ context.Context, subject string) ([]QuizItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]QuizItem{}, s.banks[subject]...), nil
}

func (s *MemoryStore) ReplaceBank(_ context.Context, subject string, items []QuizItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.banks[subject] = append([]QuizItem{}, items...)
	return nil
}
