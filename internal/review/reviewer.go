// Package review orchestrates spaced-repetition review passes: computing
// the due set, applying easy/medium/hard marks, and diverting hard cards
// into the session's quiz pool.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/leitner"
	"github.com/studylab/leitner/internal/quiz"
)

const optionCount = 4

// fallbackOptions top up a hard item when a subject has too few distinct
// answers to serve as distractors. Order matters: the sentinel comes first.
var fallbackOptions = []string{
	"None of the above",
	"Cannot be determined",
	"Not applicable",
	"Context dependent",
}

// ReviewerConfig holds a reviewer's collaborators.
type ReviewerConfig struct {
	Cards     deck.CardStore
	Scheduler *leitner.Scheduler
	Clock     leitner.Clock
}

// Reviewer applies scheduling decisions to a subject's cards.
type Reviewer struct {
	cards deck.CardStore
	sched *leitner.Scheduler
	clock leitner.Clock
}

// NewReviewer creates a reviewer. A nil scheduler defaults to the flat
// three-box table in UTC; a nil clock to the system clock.
func NewReviewer(cfg ReviewerConfig) *Reviewer {
	sched := cfg.Scheduler
	if sched == nil {
		sched = leitner.NewScheduler(nil, nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = leitner.SystemClock{}
	}
	return &Reviewer{cards: cfg.Cards, sched: sched, clock: clock}
}

// DueCards returns the subject's cards that are due for review now.
func (r *Reviewer) DueCards(ctx context.Context, subject string) ([]deck.Card, error) {
	cards, err := r.cards.ListBySubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	now := r.clock.Now()
	due := make([]deck.Card, 0, len(cards))
	for _, c := range cards {
		if r.sched.IsDue(c, now) {
			due = append(due, c)
		}
	}
	return due, nil
}

// BoxDistribution counts the subject's cards per box. Every box up to the
// scheduler's maximum appears in the result, zero or not.
func (r *Reviewer) BoxDistribution(ctx context.Context, subject string) (map[int]int, error) {
	cards, err := r.cards.ListBySubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	dist := make(map[int]int, r.sched.MaxBox())
	for box := 1; box <= r.sched.MaxBox(); box++ {
		dist[box] = 0
	}
	for _, c := range cards {
		dist[c.Box]++
	}
	return dist, nil
}

// MarkEasy promotes the card one box and persists it.
func (r *Reviewer) MarkEasy(ctx context.Context, subject, id string) (deck.Card, error) {
	return r.apply(ctx, subject, id, r.sched.Promote)
}

// MarkMedium keeps the card in its box but advances its review timestamp.
func (r *Reviewer) MarkMedium(ctx context.Context, subject, id string) (deck.Card, error) {
	return r.apply(ctx, subject, id, r.sched.Touch)
}

// MarkHard demotes the card to box 1, persists it, and appends a quiz item
// built from it to the session's hard pool, activating the pool.
func (r *Reviewer) MarkHard(ctx context.Context, subject, id string, pool *quiz.HardPool) (deck.QuizItem, error) {
	card, err := r.apply(ctx, subject, id, r.sched.Demote)
	if err != nil {
		return deck.QuizItem{}, err
	}

	others, err := r.cards.ListBySubject(ctx, subject)
	if err != nil {
		return deck.QuizItem{}, fmt.Errorf("list cards: %w", err)
	}
	item := buildHardItem(card, others)
	pool.Append(item)

	slog.Info("card sent to hard pool",
		"subject", subject,
		"card_id", id,
		"pool_size", pool.Len(),
	)
	return item, nil
}

func (r *Reviewer) apply(ctx context.Context, subject, id string, mutate func(*deck.Card, time.Time)) (deck.Card, error) {
	card, err := r.cards.Get(ctx, subject, id)
	if err != nil {
		return deck.Card{}, err
	}
	prev := card.LastReviewed
	mutate(&card, r.clock.Now())
	if err := r.cards.Update(ctx, card, prev); err != nil {
		return deck.Card{}, err
	}
	return card, nil
}

// buildHardItem constructs the remedial quiz item for a card: the card's
// answer plus up to three distinct answers drawn from the rest of the
// subject, topped up from fallbackOptions, all shuffled.
func buildHardItem(card deck.Card, subjectCards []deck.Card) deck.QuizItem {
	seen := map[string]bool{card.Answer: true}
	var distractors []string
	for _, c := range subjectCards {
		if c.ID == card.ID || c.Answer == "" || seen[c.Answer] {
			continue
		}
		seen[c.Answer] = true
		distractors = append(distractors, c.Answer)
	}
	rand.Shuffle(len(distractors), func(i, j int) {
		distractors[i], distractors[j] = distractors[j], distractors[i]
	})
	if len(distractors) > optionCount-1 {
		distractors = distractors[:optionCount-1]
	}

	options := append([]string{card.Answer}, distractors...)
	for _, f := range fallbackOptions {
		if len(options) >= optionCount {
			break
		}
		if !seen[f] {
			seen[f] = true
			options = append(options, f)
		}
	}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return deck.QuizItem{
		Question:     card.Question,
		Options:      options,
		Answer:       card.Answer,
		SourceCardID: card.ID,
	}
}
