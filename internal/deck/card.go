// Package deck holds the card and quiz-item models and the repositories
// that persist them. Stores come in memory, SQLite and PostgreSQL flavors
// behind the same interfaces.
package deck

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a card does not exist for (subject, id).
var ErrNotFound = errors.New("card not found")

// ErrConflict is returned when an optimistic update loses a race: the
// stored last-reviewed timestamp no longer matches the one read.
var ErrConflict = errors.New("card modified concurrently")

// Card is one question/answer unit in a subject's deck. Box runs from 1
// (least mastered, reviewed most often) to the scheduler's highest box.
// A zero LastReviewed means the card has never been reviewed.
type Card struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Box          int       `json:"box"`
	LastReviewed time.Time `json:"last_reviewed,omitzero"`
}

// QuizItem is a multiple-choice question presented during a quiz. Options
// always holds exactly four distinct entries, one of them equal to Answer.
// SourceCardID is set only for items built from a card marked hard; it
// routes promote/demote feedback back to that card.
type QuizItem struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	Answer       string   `json:"answer"`
	SourceCardID string   `json:"source_card_id,omitempty"`
}

// CardStore persists cards keyed by (subject, id).
//
// Update applies a read-modify-write: it only succeeds if the stored
// last-reviewed timestamp still equals prevReviewed, and returns ErrConflict
// otherwise. Put is an unconditional upsert used by the import path.
type CardStore interface {
	Get(ctx context.Context, subject, id string) (Card, error)
	ListBySubject(ctx context.Context, subject string) ([]Card, error)
	Put(ctx context.Context, card Card) error
	Update(ctx context.Context, card Card, prevReviewed time.Time) error
	ReplaceAll(ctx context.Context, subject string, cards []Card) error
}

// BankStore persists a subject's standing quiz bank.
type BankStore interface {
	GetBank(ctx context.Context, subject string) ([]QuizItem, error)
	ReplaceBank(ctx context.Context, subject string, items []QuizItem) error
}
