package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed CardStore and BankStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the cards and quiz_bank tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cards (
			subject       TEXT NOT NULL,
			id            TEXT NOT NULL,
			question      TEXT NOT NULL,
			answer        TEXT NOT NULL,
			box           INT  NOT NULL DEFAULT 1,
			last_reviewed TIMESTAMPTZ,
			PRIMARY KEY (subject, id)
		);
		CREATE TABLE IF NOT EXISTS quiz_bank (
			subject  TEXT  NOT NULL,
			position INT   NOT NULL,
			question TEXT  NOT NULL,
			options  JSONB NOT NULL,
			answer   TEXT  NOT NULL,
			PRIMARY KEY (subject, position)
		)`)
	if err != nil {
		return fmt.Errorf("migrate deck schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subject, id string) (Card, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var card Card
	var reviewed *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT subject, id, question, answer, box, last_reviewed
		 FROM cards
		 WHERE subject = $1 AND id = $2`,
		subject, id,
	).Scan(&card.Subject, &card.ID, &card.Question, &card.Answer, &card.Box, &reviewed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, fmt.Errorf("get card %s/%s: %w", subject, id, ErrNotFound)
		}
		return Card{}, fmt.Errorf("get card: %w", err)
	}
	if reviewed != nil {
		card.LastReviewed = *reviewed
	}
	return card, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Card, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT subject, id, question, answer, box, last_reviewed
		 FROM cards
		 WHERE subject = $1
		 ORDER BY id`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var card Card
		var reviewed *time.Time
		if err := rows.Scan(&card.Subject, &card.ID, &card.Question, &card.Answer, &card.Box, &reviewed); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if reviewed != nil {
			card.LastReviewed = *reviewed
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

func (s *PostgresStore) Put(ctx context.Context, card Card) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO cards (subject, id, question, answer, box, last_reviewed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subject, id) DO UPDATE
		 SET question = $3, answer = $4, box = $5, last_reviewed = $6`,
		card.Subject, card.ID, card.Question, card.Answer, card.Box, nullIfZeroTime(card.LastReviewed),
	)
	if err != nil {
		return fmt.Errorf("put card: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, card Card, prevReviewed time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE cards
		 SET box = $3, last_reviewed = $4
		 WHERE subject = $1 AND id = $2
		   AND last_reviewed IS NOT DISTINCT FROM $5`,
		card.Subject, card.ID, card.Box, nullIfZeroTime(card.LastReviewed), nullIfZeroTime(prevReviewed),
	)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Distinguish a missing card from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cards WHERE subject = $1 AND id = $2)`,
			card.Subject, card.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		if !exists {
			return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrNotFound)
		}
		return fmt.Errorf("update card %s/%s: %w", card.Subject, card.ID, ErrConflict)
	}
	return nil
}

func (s *PostgresStore) ReplaceAll(ctx context.Context, subject string, cards []Card) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cards WHERE subject = $1`, subject); err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	for _, card := range cards {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cards (subject, id, question, answer, box, last_reviewed)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			subject, card.ID, card.Question, card.Answer, card.Box, nullIfZeroTime(card.LastReviewed),
		); err != nil {
			return fmt.Errorf("replace cards: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBank(ctx context.Context, subject string) ([]QuizItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT question, options, answer
		 FROM quiz_bank
		 WHERE subject = $1
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
		var optionsJSON []byte
		if err := rows.Scan(&item.Question, &optionsJSON, &item.Answer); err != nil {
			return nil, fmt.Errorf("scan bank item: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &item.Options); err != nil {
			return nil, fmt.Errorf("decode bank options: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ReplaceBank(ctx context.Context, subject string, items []QuizItem) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM quiz_bank WHERE subject = $1`, subject); err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	for i, item := range items {
		optionsJSON, err := json.Marshal(item.Options)
		if err != nil {
			return fmt.Errorf("encode bank options: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO quiz_bank (subject, position, question, options, answer)
			 VALUES ($1, $2, $3, $4, $5)`,
			subject, i, item.Question, optionsJSON, item.Answer,
		); err != nil {
			return fmt.Errorf("replace bank: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	return nil
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
