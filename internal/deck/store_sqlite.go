package deck

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed CardStore and BankStore using the pure-Go
// SQLite driver. It is the default store for single-machine deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; a larger pool just trades errors for
	// lock contention.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle so history logs can share one database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cards (
			subject       TEXT NOT NULL,
			id            TEXT NOT NULL,
			question      TEXT NOT NULL,
			answer        TEXT NOT NULL,
			box           INTEGER NOT NULL DEFAULT 1,
			last_reviewed TEXT,
			PRIMARY KEY (subject, id)
		);
		CREATE TABLE IF NOT EXISTS quiz_bank (
			subject      TEXT NOT NULL,
			position     INTEGER NOT NULL,
			question     TEXT NOT NULL,
			options_json TEXT NOT NULL,
			answer       TEXT NOT NULL,
			PRIMARY KEY (subject, position)
		)`)
	if err != nil {
		return fmt.Errorf("migrate deck schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, subject, id string) (Card, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject, id, question, answer, box, last_reviewed
		 FROM cards
		 WHERE subject = ? AND id = ?`,
		subject, id,
	)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, fmt.Errorf("get card %s/%s: %w", subject, id, ErrNotFound)
		}
		return Card{}, fmt.Errorf("get card: %w", err)
	}
	return card, nil
}

func (s *SQLiteStore) ListBySubject(ctx context.Context, subject string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, id, question, answer, box, last_reviewed
		 FROM cards
		 WHERE subject = ?
		 ORDER BY id`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

func (s *SQLiteStore) Put(ctx context.Context, card Card) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (subject, id, question, answer, box, last_reviewed)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject, id) DO UPDATE
		 SET question = excluded.question, answer = excluded.answer,
		     box = excluded.box, last_reviewed = excluded.last_reviewed`,
		card.Subject, card.ID, card.Question, card.Answer, card.Box, formatReviewed(card.LastReviewed),
	)
	if err != nil {
		return fmt.Errorf("put card: %w", err)
	}
	return nil
}

// Update compares the stored timestamp in Go, inside a transaction, with
// the same fail-open parsing reads use. A card whose persisted
// last_reviewed is garbage reads back as zero time; comparing the raw
// column in SQL would never match that zero and the card could never be
// marked again.
func (s *SQLiteStore) Update(ctx context.Context, card Card, prevReviewed time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	defer tx.Rollback()

	var reviewed sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT last_reviewed FROM cards WHERE subject = ? AND id = ?`,
		card.Subject, card.ID,
	).Scan(&reviewed)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}

	if !parseReviewed(reviewed, card.Subject, card.ID).Equal(prevReviewed) {
		return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE cards SET box = ?, last_reviewed = ? WHERE subject = ? AND id = ?`,
		card.Box, formatReviewed(card.LastReviewed), card.Subject, card.ID,
	); err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, subject string, cards []Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE subject = ?`, subject); err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	for _, card := range cards {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cards (subject, id, question, answer, box, last_reviewed)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			subject, card.ID, card.Question, card.Answer, card.Box, formatReviewed(card.LastReviewed),
		); err != nil {
			return fmt.Errorf("replace cards: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBank(ctx context.Context, subject string) ([]QuizItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, options_json, answer
		 FROM quiz_bank
		 WHERE subject = ?
		 ORDER BY position`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("get bank: %w", err)
	}
	defer rows.Close()

	var items []QuizItem
	for rows.Next() {
		var item QuizItem
		var optionsJSON string
		if err := rows.Scan(&item.Question, &optionsJSON, &item.Answer); err != nil {
			return nil, fmt.Errorf("scan bank item: %w", err)
		}
		if err := json.Unmarshal([]byte(optionsJSON), &item.Options); err != nil {
			return nil, fmt.Errorf("decode bank options: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) ReplaceBank(ctx context.Context, subject string, items []QuizItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_bank WHERE subject = ?`, subject); err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	for i, item := range items {
		optionsJSON, err := json.Marshal(item.Options)
		if err != nil {
			return fmt.Errorf("encode bank options: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quiz_bank (subject, position, question, options_json, answer)
			 VALUES (?, ?, ?, ?, ?)`,
			subject, i, item.Question, string(optionsJSON), item.Answer,
		); err != nil {
			return fmt.Errorf("replace bank: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCard reads one card row. An unparsable last_reviewed value is logged
// and left zero, which makes the card immediately due rather than silently
// skipped.
func scanCard(row rowScanner) (Card, error) {
	var card Card
	var reviewed sql.NullString
	if err := row.Scan(&card.Subject, &card.ID, &card.Question, &card.Answer, &card.Box, &reviewed); err != nil {
		return Card{}, err
	}
	card.LastReviewed = parseReviewed(reviewed, card.Subject, card.ID)
	return card, nil
}

// parseReviewed decodes a stored timestamp. Malformed values are logged and
// come back zero, so the card is due rather than lost.
func parseReviewed(reviewed sql.NullString, subject, id string) time.Time {
	if !reviewed.Valid || reviewed.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, reviewed.String)
	if err != nil {
		slog.Warn("card has malformed last_reviewed, treating as due",
			"subject", subject,
			"card_id", id,
			"value", reviewed.String,
		)
		return time.Time{}
	}
	return t
}

func formatReviewed(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
