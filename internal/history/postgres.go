package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresLogs bundles PostgreSQL-backed ProgressLog and MistakeLog over
// one pool.
type PostgresLogs struct {
	Progress *PostgresProgressLog
	Mistakes *PostgresMistakeLog
}

// NewPostgresLogs creates both logs and ensures their tables exist.
func NewPostgresLogs(ctx context.Context, pool *pgxpool.Pool) (*PostgresLogs, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS progress (
			subject   TEXT NOT NULL,
			ts        TIMESTAMPTZ NOT NULL,
			accuracy  DOUBLE PRECISION NOT NULL
		);
		CREATE TABLE IF NOT EXISTS mistakes (
			subject        TEXT NOT NULL,
			question       TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			ts             TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &PostgresLogs{
		Progress: &PostgresProgressLog{pool: pool},
		Mistakes: &PostgresMistakeLog{pool: pool},
	}, nil
}

// PostgresProgressLog appends to and reads the progress table.
type PostgresProgressLog struct {
	pool *pgxpool.Pool
}

func (l *PostgresProgressLog) Append(ctx context.Context, rec ProgressRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("progress record subject is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO progress (subject, ts, accuracy) VALUES ($1, $2, $3)`,
		rec.Subject, rec.Timestamp, rec.Accuracy,
	)
	if err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

func (l *PostgresProgressLog) ListBySubject(ctx context.Context, subject string, limit int) ([]ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT subject, ts, accuracy FROM progress WHERE subject = $1 ORDER BY ts`
	args := []any{subject}
	if limit > 0 {
		// Keep the most recent records but return them oldest first.
		query = `SELECT subject, ts, accuracy FROM (
			SELECT subject, ts, accuracy FROM progress
			WHERE subject = $1 ORDER BY ts DESC LIMIT $2
		) recent ORDER BY ts`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var r ProgressRecord
		if err := rows.Scan(&r.Subject, &r.Timestamp, &r.Accuracy); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

func (l *PostgresProgressLog) ListAll(ctx context.Context) ([]ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT subject, ts, accuracy FROM progress ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var r ProgressRecord
		if err := rows.Scan(&r.Subject, &r.Timestamp, &r.Accuracy); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

// PostgresMistakeLog appends to and reads the mistakes table.
type PostgresMistakeLog struct {
	pool *pgxpool.Pool
}

func (l *PostgresMistakeLog) Append(ctx context.Context, rec MistakeRecord) error {
	if rec.Subject == "" {
		return fmt.Errorf("mistake record subject is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO mistakes (subject, question, correct_answer, ts)
		 VALUES ($1, $2, $3, $4)`,
		rec.Subject, rec.Question, rec.CorrectAnswer, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append mistake: %w", err)
	}
	return nil
}

func (l *PostgresMistakeLog) ListBySubject(ctx context.Context, subject string, limit int) ([]MistakeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT subject, question, correct_answer, ts
	          FROM mistakes WHERE subject = $1 ORDER BY ts DESC`
	args := []any{subject}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mistakes: %w", err)
	}
	defer rows.Close()

	var out []MistakeRecord
	for rows.Next() {
		var r MistakeRecord
		if err := rows.Scan(&r.Subject, &r.Question, &r.CorrectAnswer, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan mistake: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mistakes: %w", err)
	}
	return out, nil
}

func (l *PostgresMistakeLog) ListAll(ctx context.Context) ([]MistakeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT subject, question, correct_answer, ts FROM mistakes ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("list mistakes: %w", err)
	}
	defer rows.Close()

	var out []MistakeRecord
	for rows.Next() {
		var r MistakeRecord
		if err := rows.Scan(&r.Subject, &r.Question, &r.CorrectAnswer, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan mistake: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mistakes: %w", err)
	}
	return out, nil
}
