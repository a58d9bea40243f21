package quiz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/history"
	"github.com/studylab/leitner/internal/leitner"
	"github.com/studylab/leitner/internal/quiz"
)

var quizNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *deck.MemoryStore
	progress *history.MemoryProgressLog
	mistakes *history.MemoryMistakeLog
	session  *quiz.Session
}

func newFixture(t *testing.T, subject string) *fixture {
	t.Helper()
	f := &fixture{
		store:    deck.NewMemoryStore(),
		progress: history.NewMemoryProgressLog(),
		mistakes: history.NewMemoryMistakeLog(),
	}
	f.session = quiz.NewSession(quiz.SessionConfig{
		Subject:  subject,
		Cards:    f.store,
		Clock:    leitner.FixedClock{T: quizNow},
		Progress: f.progress,
		Mistakes: f.mistakes,
	})
	return f
}

func threeItems() []deck.QuizItem {
	return []deck.QuizItem{
		{Question: "2+2", Options: []string{"3", "4", "5", "6"}, Answer: "4"},
		{Question: "3+3", Options: []string{"5", "6", "7", "8"}, Answer: "6"},
		{Question: "4+4", Options: []string{"7", "8", "9", "10"}, Answer: "8"},
	}
}

func TestSession_StartsEmpty(t *testing.T) {
	f := newFixture(t, "math")
	if got := f.session.State(); got != quiz.StateEmpty {
		t.Errorf("State() = %s, want empty", got)
	}
	_, err := f.session.SubmitAnswer(context.Background(), 0, "4")
	if !errors.Is(err, quiz.ErrInvalidTransition) {
		t.Errorf("SubmitAnswer() on empty session error = %v, want ErrInvalidTransition", err)
	}
	if err := f.session.Restart(); !errors.Is(err, quiz.ErrInvalidTransition) {
		t.Errorf("Restart() on empty session error = %v, want ErrInvalidTransition", err)
	}
}

func TestSession_EmptyPoolStaysEmpty(t *testing.T) {
	f := newFixture(t, "math")
	f.session.SelectSubjectPool(nil)
	if got := f.session.State(); got != quiz.StateEmpty {
		t.Errorf("State() after empty pool = %s, want empty", got)
	}
	if got := quiz.Accuracy(f.session.Score()); got != 0 {
		t.Errorf("Accuracy() of empty session = %v, want 0", got)
	}
}

func TestSession_FullRun(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()
	f.session.SelectSubjectPool(threeItems())

	if got := f.session.State(); got != quiz.StateInProgress {
		t.Fatalf("State() = %s, want in_progress", got)
	}

	// correct, wrong, correct
	res, err := f.session.SubmitAnswer(ctx, 0, "4")
	if err != nil {
		t.Fatalf("SubmitAnswer(0) error = %v", err)
	}
	if !res.Correct || res.Done {
		t.Errorf("SubmitAnswer(0) = %+v, want correct and not done", res)
	}

	res, err = f.session.SubmitAnswer(ctx, 1, "7")
	if err != nil {
		t.Fatalf("SubmitAnswer(1) error = %v", err)
	}
	if res.Correct {
		t.Error("SubmitAnswer(1) with wrong choice reported correct")
	}
	if res.Answer != "6" {
		t.Errorf("SubmitAnswer(1) revealed answer %q, want 6", res.Answer)
	}

	res, err = f.session.SubmitAnswer(ctx, 2, "8")
	if err != nil {
		t.Fatalf("SubmitAnswer(2) error = %v", err)
	}
	if !res.Done {
		t.Fatal("SubmitAnswer(2) not done after last question")
	}
	if res.Accuracy != 66.67 {
		t.Errorf("Accuracy = %v, want 66.67", res.Accuracy)
	}
	if res.Score != (quiz.Score{Correct: 2, Wrong: 1}) {
		t.Errorf("Score = %+v, want 2 correct 1 wrong", res.Score)
	}
	if got := f.session.State(); got != quiz.StateComplete {
		t.Errorf("State() = %s, want complete", got)
	}

	// One mistake record for the miss.
	mistakes, err := f.mistakes.ListBySubject(ctx, "math", 0)
	if err != nil {
		t.Fatalf("ListBySubject() error = %v", err)
	}
	if len(mistakes) != 1 || mistakes[0].Question != "3+3" || mistakes[0].CorrectAnswer != "6" {
		t.Errorf("mistake log = %+v, want one record for 3+3", mistakes)
	}

	// One progress record for the subject pool.
	progress, err := f.progress.ListBySubject(ctx, "math", 0)
	if err != nil {
		t.Fatalf("ListBySubject() error = %v", err)
	}
	if len(progress) != 1 || progress[0].Accuracy != 66.67 {
		t.Errorf("progress log = %+v, want one record at 66.67", progress)
	}
}

// flakyProgressLog fails Append until flipped, then delegates.
type flakyProgressLog struct {
	*history.MemoryProgressLog
	fail bool
}

func (l *flakyProgressLog) Append(ctx context.Context, rec history.ProgressRecord) error {
	if l.fail {
		return errors.New("progress log unavailable")
	}
	return l.MemoryProgressLog.Append(ctx, rec)
}

func TestSession_FinalAnswerRetriesAfterProgressError(t *testing.T) {
	ctx := context.Background()
	store := deck.NewMemoryStore()
	progress := &flakyProgressLog{MemoryProgressLog: history.NewMemoryProgressLog(), fail: true}
	session := quiz.NewSession(quiz.SessionConfig{
		Subject:  "math",
		Cards:    store,
		Clock:    leitner.FixedClock{T: quizNow},
		Progress: progress,
		Mistakes: history.NewMemoryMistakeLog(),
	})
	session.SelectSubjectPool(threeItems()[:1])

	if _, err := session.SubmitAnswer(ctx, 0, "4"); err == nil {
		t.Fatal("SubmitAnswer() succeeded while the progress log was down")
	}

	// The failed write must not consume the question.
	if got := session.State(); got != quiz.StateInProgress {
		t.Fatalf("State() after failed final write = %s, want in_progress", got)
	}
	_, idx, err := session.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if idx != 0 {
		t.Fatalf("Current() index = %d, want 0", idx)
	}

	progress.fail = false
	res, err := session.SubmitAnswer(ctx, 0, "4")
	if err != nil {
		t.Fatalf("retried SubmitAnswer() error = %v", err)
	}
	if !res.Done || res.Accuracy != 100 {
		t.Errorf("retried SubmitAnswer() = %+v, want done at 100", res)
	}
	if got := session.State(); got != quiz.StateComplete {
		t.Errorf("State() = %s, want complete", got)
	}

	records, err := progress.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(records) != 1 || records[0].Accuracy != 100 {
		t.Errorf("progress log = %+v, want one record at 100", records)
	}
}

func TestSession_DuplicateSubmissionRejected(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()
	f.session.SelectSubjectPool(threeItems())

	if _, err := f.session.SubmitAnswer(ctx, 0, "4"); err != nil {
		t.Fatalf("SubmitAnswer(0) error = %v", err)
	}
	_, err := f.session.SubmitAnswer(ctx, 0, "4")
	if !errors.Is(err, quiz.ErrInvalidTransition) {
		t.Errorf("duplicate SubmitAnswer(0) error = %v, want ErrInvalidTransition", err)
	}
	if got := f.session.Score(); got != (quiz.Score{Correct: 1}) {
		t.Errorf("Score after rejected duplicate = %+v, want 1 correct", got)
	}
}

func TestSession_SubmitAfterCompleteRejected(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()
	f.session.SelectSubjectPool(threeItems()[:1])

	if _, err := f.session.SubmitAnswer(ctx, 0, "4"); err != nil {
		t.Fatalf("SubmitAnswer(0) error = %v", err)
	}
	_, err := f.session.SubmitAnswer(ctx, 1, "6")
	if !errors.Is(err, quiz.ErrInvalidTransition) {
		t.Errorf("SubmitAnswer() after complete error = %v, want ErrInvalidTransition", err)
	}
}

func TestSession_Restart(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()
	f.session.SelectSubjectPool(threeItems()[:1])

	if _, err := f.session.SubmitAnswer(ctx, 0, "4"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if err := f.session.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if got := f.session.State(); got != quiz.StateInProgress {
		t.Errorf("State() after restart = %s, want in_progress", got)
	}
	if got := f.session.Score(); got != (quiz.Score{}) {
		t.Errorf("Score after restart = %+v, want zeroed", got)
	}
	// Same pool again from the top.
	item, idx, err := f.session.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if idx != 0 || item.Question != "2+2" {
		t.Errorf("Current() = %q at %d, want 2+2 at 0", item.Question, idx)
	}
}

func TestSession_HardPoolRun(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()

	card := deck.Card{ID: "c1", Subject: "math", Question: "6*7", Answer: "42", Box: 1}
	if err := f.store.Put(ctx, card); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	pool := quiz.NewHardPool()
	pool.Append(deck.QuizItem{
		Question:     "6*7",
		Options:      []string{"40", "41", "42", "43"},
		Answer:       "42",
		SourceCardID: "c1",
	})
	f.session.SelectHardPool(pool)

	if got := f.session.Source(); got != quiz.SourceHard {
		t.Fatalf("Source() = %s, want hard", got)
	}

	res, err := f.session.SubmitAnswer(ctx, 0, "42")
	if err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if !res.Done || res.Accuracy != 100 {
		t.Errorf("SubmitAnswer() = %+v, want done at 100", res)
	}

	// Correct hard answer promotes the source card.
	got, err := f.store.Get(ctx, "math", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Box != 2 {
		t.Errorf("source card box = %d, want 2 after correct hard answer", got.Box)
	}

	// Hard runs never write progress records.
	progress, err := f.progress.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(progress) != 0 {
		t.Errorf("progress log has %d records after hard run, want 0", len(progress))
	}

	// The pool is cleared once its session completes.
	if pool.Active() {
		t.Error("hard pool still active after session completion")
	}
}

func TestSession_HardPoolWrongDemotes(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()

	reviewed := quizNow.AddDate(0, 0, -1)
	card := deck.Card{ID: "c1", Subject: "math", Question: "6*7", Answer: "42", Box: 3, LastReviewed: reviewed}
	if err := f.store.Put(ctx, card); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	pool := quiz.NewHardPool()
	pool.Append(deck.QuizItem{Question: "6*7", Options: []string{"40", "41", "42", "43"}, Answer: "42", SourceCardID: "c1"})
	f.session.SelectHardPool(pool)

	if _, err := f.session.SubmitAnswer(ctx, 0, "40"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}

	got, err := f.store.Get(ctx, "math", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Box != 1 {
		t.Errorf("source card box = %d, want 1 after wrong hard answer", got.Box)
	}
	mistakes, err := f.mistakes.ListBySubject(ctx, "math", 0)
	if err != nil {
		t.Fatalf("ListBySubject() error = %v", err)
	}
	if len(mistakes) != 1 {
		t.Errorf("mistake log has %d records, want 1", len(mistakes))
	}
}

func TestSession_MissingSourceCardSkipped(t *testing.T) {
	f := newFixture(t, "math")
	ctx := context.Background()

	pool := quiz.NewHardPool()
	pool.Append(deck.QuizItem{Question: "6*7", Options: []string{"40", "41", "42", "43"}, Answer: "42", SourceCardID: "gone"})
	f.session.SelectHardPool(pool)

	// The deck was re-imported underneath the session; grading still works.
	res, err := f.session.SubmitAnswer(ctx, 0, "42")
	if err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if !res.Correct || !res.Done {
		t.Errorf("SubmitAnswer() = %+v, want correct and done", res)
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		score quiz.Score
		want  float64
	}{
		{"empty", quiz.Score{}, 0},
		{"all correct", quiz.Score{Correct: 4}, 100},
		{"all wrong", quiz.Score{Wrong: 3}, 0},
		{"two thirds", quiz.Score{Correct: 2, Wrong: 1}, 66.67},
		{"one third", quiz.Score{Correct: 1, Wrong: 2}, 33.33},
		{"half", quiz.Score{Correct: 3, Wrong: 3}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quiz.Accuracy(tt.score); got != tt.want {
				t.Errorf("Accuracy(%+v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestHardPool(t *testing.T) {
	pool := quiz.NewHardPool()
	if pool.Active() {
		t.Error("new pool reports active")
	}

	pool.Append(deck.QuizItem{Question: "q1", Answer: "a1"})
	pool.Append(deck.QuizItem{Question: "q2", Answer: "a2"})
	if !pool.Active() {
		t.Error("pool with items reports inactive")
	}
	items := pool.Items()
	if len(items) != 2 {
		t.Fatalf("Items() returned %d items, want 2", len(items))
	}

	// Items() hands out a copy.
	items[0].Question = "mutated"
	if pool.Items()[0].Question != "q1" {
		t.Error("mutating the Items() slice leaked into the pool")
	}

	pool.Clear()
	if pool.Active() {
		t.Error("cleared pool reports active")
	}
	if len(pool.Items()) != 0 {
		t.Error("cleared pool still has items")
	}
}
