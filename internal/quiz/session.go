// Package quiz implements the quiz session state machine and the hard pool
// that feeds review misses back into it.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/history"
	"github.com/studylab/leitner/internal/leitner"
)

// ErrInvalidTransition is returned when an operation is not valid in the
// session's current state, including submitting an answer for an index that
// has already advanced. The session state is never altered on this error.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the lifecycle phase of a session.
type State int

const (
	StateEmpty State = iota
	StateInProgress
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source identifies which pool a session consumes.
type Source int

const (
	SourceSubject Source = iota
	SourceHard
)

func (s Source) String() string {
	if s == SourceHard {
		return "hard"
	}
	return "subject"
}

// Score holds the running counters of a session. Both counters are
// non-decreasing until Restart.
type Score struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

// Result reports the outcome of one submitted answer.
type Result struct {
	Correct  bool    `json:"correct"`
	Answer   string  `json:"answer"` // the true answer, shown after a miss
	Done     bool    `json:"done"`
	Score    Score   `json:"score"`
	Accuracy float64 `json:"accuracy,omitempty"` // set when Done
}

// SessionConfig holds a session's collaborators.
type SessionConfig struct {
	Subject   string
	Cards     deck.CardStore
	Scheduler *leitner.Scheduler
	Clock     leitner.Clock
	Progress  history.ProgressLog
	Mistakes  history.MistakeLog
}

// Session drives one pass through a quiz pool. A session must be owned by
// one logical caller at a time; an internal mutex serializes transitions so
// duplicate submissions are rejected instead of double-counted.
type Session struct {
	mu sync.Mutex

	subject string
	source  Source
	pool    []deck.QuizItem
	hard    *HardPool // set when source == SourceHard, cleared on completion
	index   int
	score   Score
	state   State

	cards    deck.CardStore
	sched    *leitner.Scheduler
	clock    leitner.Clock
	progress history.ProgressLog
	mistakes history.MistakeLog
}

// NewSession creates an empty session; select a pool to start it.
func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = leitner.SystemClock{}
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = leitner.NewScheduler(nil, nil)
	}
	return &Session{
		subject:  cfg.Subject,
		cards:    cfg.Cards,
		sched:    sched,
		clock:    clock,
		progress: cfg.Progress,
		mistakes: cfg.Mistakes,
		state:    StateEmpty,
	}
}

// SelectSubjectPool starts the session over the subject's question bank.
// An empty pool leaves the session Empty.
func (s *Session) SelectSubjectPool(items []deck.QuizItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectPool(SourceSubject, append([]deck.QuizItem{}, items...), nil)
}

// SelectHardPool starts the session over a snapshot of the hard pool. The
// pool itself is cleared when the session completes.
func (s *Session) SelectHardPool(pool *HardPool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectPool(SourceHard, pool.Items(), pool)
}

func (s *Session) selectPool(source Source, items []deck.QuizItem, hard *HardPool) {
	s.source = source
	s.pool = items
	s.hard = hard
	s.index = 0
	s.score = Score{}
	if len(items) == 0 {
		s.state = StateEmpty
		return
	}
	s.state = StateInProgress
}

// Subject returns the subject the session belongs to.
func (s *Session) Subject() string {
	return s.subject
}

// State returns the session's lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Source returns which pool the session consumes.
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Score returns the running counters.
func (s *Session) Score() Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Len returns the pool size.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Current returns the item awaiting an answer and its index.
func (s *Session) Current() (deck.QuizItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return deck.QuizItem{}, 0, fmt.Errorf("no current question in state %s: %w", s.state, ErrInvalidTransition)
	}
	return s.pool[s.index], s.index, nil
}

// SubmitAnswer grades the answer for the item at index. The caller echoes
// the index it is answering; a stale index means a duplicate or out-of-order
// submission and is rejected without touching any state.
//
// A correct answer promotes the item's source card (hard-pool items only); a
// wrong answer records a mistake and demotes the source card. Store errors
// surface before the cursor advances, so the same submission can be retried.
func (s *Session) SubmitAnswer(ctx context.Context, index int, choice string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return Result{}, fmt.Errorf("submit in state %s: %w", s.state, ErrInvalidTransition)
	}
	if index != s.index {
		return Result{}, fmt.Errorf("submit for index %d, current %d: %w", index, s.index, ErrInvalidTransition)
	}

	item := s.pool[s.index]
	correct := choice == item.Answer

	if correct {
		if err := s.feedbackToCard(ctx, item, true); err != nil {
			return Result{}, err
		}
	} else {
		if err := s.mistakes.Append(ctx, history.MistakeRecord{
			Subject:       s.subject,
			Question:      item.Question,
			CorrectAnswer: item.Answer,
			Timestamp:     s.clock.Now(),
		}); err != nil {
			return Result{}, fmt.Errorf("record mistake: %w", err)
		}
		if err := s.feedbackToCard(ctx, item, false); err != nil {
			return Result{}, err
		}
	}

	// The final answer also commits the progress record, and that write
	// happens before any counter advances: a failed append leaves the
	// session InProgress at the same index, so the submission can be
	// retried.
	last := s.index == len(s.pool)-1
	var acc float64
	if last {
		final := s.score
		if correct {
			final.Correct++
		} else {
			final.Wrong++
		}
		acc = Accuracy(final)
		if s.source == SourceSubject {
			if err := s.progress.Append(ctx, history.ProgressRecord{
				Subject:   s.subject,
				Timestamp: s.clock.Now(),
				Accuracy:  acc,
			}); err != nil {
				return Result{}, fmt.Errorf("record progress: %w", err)
			}
		}
	}

	if correct {
		s.score.Correct++
	} else {
		s.score.Wrong++
	}
	s.index++

	res := Result{
		Correct: correct,
		Answer:  item.Answer,
		Score:   s.score,
	}
	if last {
		s.complete(acc)
		res.Done = true
		res.Accuracy = acc
	}
	return res, nil
}

// feedbackToCard promotes or demotes the card a hard-pool item was built
// from, using an optimistic read-modify-write. Items without a source card
// are plain bank questions and need no feedback. A card that vanished under
// us (bulk re-import) is logged and skipped rather than failing the quiz.
func (s *Session) feedbackToCard(ctx context.Context, item deck.QuizItem, promote bool) error {
	if item.SourceCardID == "" {
		return nil
	}
	card, err := s.cards.Get(ctx, s.subject, item.SourceCardID)
	if err != nil {
		if errors.Is(err, deck.ErrNotFound) {
			slog.Warn("source card gone, skipping feedback",
				"subject", s.subject,
				"card_id", item.SourceCardID,
			)
			return nil
		}
		return fmt.Errorf("load source card: %w", err)
	}

	prev := card.LastReviewed
	now := s.clock.Now()
	if promote {
		s.sched.Promote(&card, now)
	} else {
		s.sched.Demote(&card, now)
	}
	if err := s.cards.Update(ctx, card, prev); err != nil {
		return fmt.Errorf("persist card feedback: %w", err)
	}
	return nil
}

// complete finalizes the session after its persistence succeeded. Hard
// pools are drained without a progress record so remedial runs never skew
// the subject's mastery trend.
func (s *Session) complete(acc float64) {
	s.state = StateComplete
	if s.source == SourceHard && s.hard != nil {
		s.hard.Clear()
	}

	slog.Info("quiz complete",
		"subject", s.subject,
		"source", s.source.String(),
		"correct", s.score.Correct,
		"wrong", s.score.Wrong,
		"accuracy", acc,
	)
}

// Restart rewinds the session over the same pool. Valid from InProgress or
// Complete; an Empty session has nothing to restart.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEmpty {
		return fmt.Errorf("restart in state %s: %w", s.state, ErrInvalidTransition)
	}
	s.index = 0
	s.score = Score{}
	s.state = StateInProgress
	return nil
}

// Accuracy computes the percentage of correct answers, rounded to two
// decimals. A session with no answers scores zero.
func Accuracy(score Score) float64 {
	total := score.Correct + score.Wrong
	if total == 0 {
		return 0
	}
	return math.Round(100*float64(score.Correct)/float64(total)*100) / 100
}
