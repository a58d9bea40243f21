// Package history holds the append-only progress and mistake logs. Records
// are never updated or deleted, so trend reporting can recompute over them
// idempotently.
package history

import (
	"context"
	"time"
)

// ProgressRecord is one completed subject-pool quiz attempt.
type ProgressRecord struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  float64   `json:"accuracy"`
}

// MistakeRecord is one wrong answer given during any quiz session.
type MistakeRecord struct {
	Subject       string    `json:"subject"`
	Question      string    `json:"question"`
	CorrectAnswer string    `json:"correct_answer"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProgressLog persists quiz accuracy history. ListBySubject returns records
// in chronological order; limit <= 0 means no limit (most recent kept when a
// limit applies).
type ProgressLog interface {
	Append(ctx context.Context, rec ProgressRecord) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]ProgressRecord, error)
	ListAll(ctx context.Context) ([]ProgressRecord, error)
}

// MistakeLog persists wrong answers for later review. ListBySubject returns
// records newest first.
type MistakeLog interface {
	Append(ctx context.Context, rec MistakeRecord) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]MistakeRecord, error)
	ListAll(ctx context.Context) ([]MistakeRecord, error)
}

// Summary condenses a run of progress records for display.
type Summary struct {
	Attempts     int     `json:"attempts"`
	MeanAccuracy float64 `json:"mean_accuracy"`
}

// Summarize computes attempt count and mean accuracy over records.
func Summarize(records []ProgressRecord) Summary {
	s := Summary{Attempts: len(records)}
	if len(records) == 0 {
		return s
	}
	var total float64
	for _, r := range records {
		total += r.Accuracy
	}
	s.MeanAccuracy = total / float64(len(records))
	return s
}
