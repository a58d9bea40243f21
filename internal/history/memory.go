package history

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProgressLog is an in-memory ProgressLog used by tests and the
// memory store driver.
type MemoryProgressLog struct {
	mu      sync.Mutex
	records []ProgressRecord
}

func NewMemoryProgressLog() *MemoryProgressLog {
	return &MemoryProgressLog{}
}

func (l *MemoryProgressLog) Append(_ context.Context, rec ProgressRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("progress record subject is required")
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

func (l *MemoryProgressLog) ListBySubject(_ context.Context, subject string, limit int) ([]ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ProgressRecord
	for _, r := range l.records {
		if r.Subject == subject {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *MemoryProgressLog) ListAll(_ context.Context) ([]ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProgressRecord{}, l.records...), nil
}

// MemoryMistakeLog is an in-memory MistakeLog.
type MemoryMistakeLog struct {
	mu      sync.Mutex
	records []MistakeRecord
}

func NewMemoryMistakeLog() *MemoryMistakeLog {
	return &MemoryMistakeLog{}
}

func (l *MemoryMistakeLog) Append(_ context.Context, rec MistakeRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("mistake record subject is required")
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

func (l *MemoryMistakeLog) ListBySubject(_ context.Context, subject string, limit int) ([]MistakeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Newest first.
	var out []MistakeRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Subject == subject {
			out = append(out, l.records[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryMistakeLog) ListAll(_ context.Context) ([]MistakeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MistakeRecord{}, l.records...), nil
}
