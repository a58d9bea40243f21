package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studylab/leitner/internal/deck"
)

const defaultBankTTL = 10 * time.Minute

// BankCache is a read-through Redis cache in front of a BankStore. Quiz
// banks only change on deck import, so short TTLs keep them fresh enough
// while sparing the store on every pool selection.
type BankCache struct {
	client *redis.Client
	store  deck.BankStore
	ttl    time.Duration
}

// NewBankCache wraps store with a cache. A zero ttl uses the default.
func NewBankCache(client *redis.Client, store deck.BankStore, ttl time.Duration) *BankCache {
	if ttl <= 0 {
		ttl = defaultBankTTL
	}
	return &BankCache{client: client, store: store, ttl: ttl}
}

func bankKey(subject string) string {
	return "bank:" + subject
}

// GetBank returns the subject's quiz bank, from cache when possible. Cache
// failures degrade to the store, they never fail the read.
func (c *BankCache) GetBank(ctx context.Context, subject string) ([]deck.QuizItem, error) {
	key := bankKey(subject)
	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var items []deck.QuizItem
		if err := json.Unmarshal(cached, &items); err == nil {
			return items, nil
		}
		slog.Warn("dropping undecodable cached bank", "subject", subject)
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		slog.Warn("bank cache read failed", "subject", subject, "error", err)
	}

	items, err := c.store.GetBank(ctx, subject)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(items); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("bank cache write failed", "subject", subject, "error", err)
		}
	}
	return items, nil
}

// ReplaceBank writes through to the store and invalidates the cache entry.
func (c *BankCache) ReplaceBank(ctx context.Context, subject string, items []deck.QuizItem) error {
	if err := c.store.ReplaceBank(ctx, subject, items); err != nil {
		return err
	}
	if err := c.client.Del(ctx, bankKey(subject)).Err(); err != nil {
		return fmt.Errorf("invalidate bank cache: %w", err)
	}
	return nil
}
