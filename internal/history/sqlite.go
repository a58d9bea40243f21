package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLogs bundles SQLite-backed ProgressLog and MistakeLog over one
// database handle, typically shared with the deck store.
type SQLiteLogs struct {
	Progress *SQLiteProgressLog
	Mistakes *SQLiteMistakeLog
}

// NewSQLiteLogs creates both logs and ensures their tables exist.
func NewSQLiteLogs(ctx context.Context, db *sql.DB) (*SQLiteLogs, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS progress (
			subject  TEXT NOT NULL,
			ts       TEXT NOT NULL,
			accuracy REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS mistakes (
			subject        TEXT NOT NULL,
			question       TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			ts             TEXT NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &SQLiteLogs{
		Progress: &SQLiteProgressLog{db: db},
		Mistakes: &SQLiteMistakeLog{db: db},
	}, nil
}

// SQLiteProgressLog appends to and reads the progress table.
type SQLiteProgressLog struct {
	db *sql.DB
}

func (l *SQLiteProgressLog) Append(ctx context.Context, rec ProgressRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("progress record subject is required")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO progress (subject, ts, accuracy) VALUES (?, ?, ?)`,
		rec.Subject, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Accuracy,
	)
	if err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

func (l *SQLiteProgressLog) ListBySubject(ctx context.Context, subject string, limit int) ([]ProgressRecord, error) {
	query := `SELECT subject, ts, accuracy FROM progress WHERE subject = ? ORDER BY ts`
	args := []any{subject}
	if limit > 0 {
		query = `SELECT subject, ts, accuracy FROM (
			SELECT subject, ts, accuracy FROM progress
			WHERE subject = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts`
		args = append(args, limit)
	}
	return l.query(ctx, query, args...)
}

func (l *SQLiteProgressLog) ListAll(ctx context.Context) ([]ProgressRecord, error) {
	return l.query(ctx, `SELECT subject, ts, accuracy FROM progress ORDER BY ts`)
}

func (l *SQLiteProgressLog) query(ctx context.Context, query string, args ...any) ([]ProgressRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var r ProgressRecord
		var ts string
		if err := rows.Scan(&r.Subject, &ts, &r.Accuracy); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		r.Timestamp = parseLogTime(ts, "progress", r.Subject)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

// SQLiteMistakeLog appends to and reads the mistakes table.
type SQLiteMistakeLog struct {
	db *sql.DB
}

func (l *SQLiteMistakeLog) Append(ctx context.Context, rec MistakeRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("mistake record subject is required")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO mistakes (subject, question, correct_answer, ts)
		 VALUES (?, ?, ?, ?)`,
		rec.Subject, rec.Question, rec.CorrectAnswer, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append mistake: %w", err)
	}
	return nil
}

func (l *SQLiteMistakeLog) ListBySubject(ctx context.Context, subject string, limit int) ([]MistakeRecord, error) {
	query := `SELECT subject, question, correct_answer, ts
	          FROM mistakes WHERE subject = ? ORDER BY ts DESC`
	args := []any{subject}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return l.query(ctx, query, args...)
}

func (l *SQLiteMistakeLog) ListAll(ctx context.Context) ([]MistakeRecord, error) {
	return l.query(ctx, `SELECT subject, question, correct_answer, ts FROM mistakes ORDER BY ts DESC`)
}

func (l *SQLiteMistakeLog) query(ctx context.Context, query string, args ...any) ([]MistakeRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mistakes: %w", err)
	}
	defer rows.Close()

	var out []MistakeRecord
	for rows.Next() {
		var r MistakeRecord
		var ts string
		if err := rows.Scan(&r.Subject, &r.Question, &r.CorrectAnswer, &ts); err != nil {
			return nil, fmt.Errorf("scan mistake: %w", err)
		}
		r.Timestamp = parseLogTime(ts, "mistake", r.Subject)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mistakes: %w", err)
	}
	return out, nil
}

// parseLogTime tolerates malformed stored timestamps: the record is still
// returned, with a zero timestamp and a logged anomaly.
func parseLogTime(value, kind, subject string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("log record has malformed timestamp",
			"kind", kind,
			"subject", subject,
			"value", value,
		)
		return time.Time{}
	}
	return t
}
