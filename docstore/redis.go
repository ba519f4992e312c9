package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

// Redis keeps the document and its revision token under two keys and uses a
// WATCH transaction for the optimistic check: the write aborts when another
// writer commits between the read of the revision key and the MULTI/EXEC.
type Redis struct {
	client     *redis.Client
	contentKey string
	revKey     string
}

// NewRedis creates a redis-backed store under the given key prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "boardsync"
	}
	return &Redis{
		client:     client,
		contentKey: prefix + ":document",
		revKey:     prefix + ":revision",
	}
}

// Get reads the current document and revision. A missing document reads as
// an empty JSON object with a stable initial revision so the first Put can
// still present a matching token.
func (r *Redis) Get(ctx context.Context) (Snapshot, error) {
	vals, err := r.client.MGet(ctx, r.contentKey, r.revKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis read: %w", err)
	}
	content, _ := vals[0].(string)
	revision, _ := vals[1].(string)
	if content == "" {
		content = "{}"
	}
	if revision == "" {
		revision = "genesis"
	}
	return Snapshot{Content: []byte(content), Revision: revision}, nil
}

// Put commits new content when revision still matches the stored token. The
// commit message is not persisted; redis keeps no history.
func (r *Redis) Put(ctx context.Context, content []byte, revision, _ string) error {
	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.revKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if current == "" {
			current = "genesis"
		}
		if current != revision {
			return fmt.Errorf("revision %s superseded by %s: %w", revision, current, domain.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.contentKey, content, 0)
			pipe.Set(ctx, r.revKey, uuid.NewString(), 0)
			return nil
		})
		return err
	}
	err := r.client.Watch(ctx, txn, r.revKey)
	if err == redis.TxFailedErr {
		return fmt.Errorf("concurrent write on %s: %w", r.contentKey, domain.ErrConflict)
	}
	return err
}
