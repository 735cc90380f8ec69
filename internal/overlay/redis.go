package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// DefaultRedisKey is the hash holding one field per hidden sale.
const DefaultRedisKey = "crmsync:soft_deletes"

const maxHideAttempts = 16

// ErrContended is returned when a hide keeps losing its WATCH to other writers.
var ErrContended = errors.New("overlay: too much contention on the soft delete hash")

// Redis keeps the overlay in a redis hash so several processes share it.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis creates a redis-backed overlay stored under key.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// Hide writes the entry under WATCH so a concurrent re-hide of the same
// sale cannot replace the entry id it keeps.
func (r *Redis) Hide(ctx context.Context, saleID string, snapshot models.RawJSON, reason string) (string, error) {
	entry := newEntry(saleID, snapshot, reason)
	freshID := entry.ID

	hide := func(tx *redis.Tx) error {
		prev, err := decodeEntry(saleID, tx.HGet(ctx, r.key, saleID))
		if err != nil {
			return err
		}
		entry.ID = freshID
		if prev != nil {
			entry.ID = prev.ID
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode soft delete: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, r.key, saleID, data)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxHideAttempts; attempt++ {
		err := r.client.Watch(ctx, hide, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", err
		}
		return entry.ID, nil
	}
	return "", fmt.Errorf("hide %s: %w", saleID, ErrContended)
}

func (r *Redis) Restore(ctx context.Context, saleID string) (bool, error) {
	n, err := r.client.HDel(ctx, r.key, saleID).Result()
	return n > 0, err
}

func (r *Redis) HiddenIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Redis) IsHidden(ctx context.Context, saleID string) (bool, error) {
	return r.client.HExists(ctx, r.key, saleID).Result()
}

func (r *Redis) Get(ctx context.Context, saleID string) (*models.SoftDelete, error) {
	return decodeEntry(saleID, r.client.HGet(ctx, r.key, saleID))
}

func decodeEntry(saleID string, cmd *redis.StringCmd) (*models.SoftDelete, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry models.SoftDelete
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode soft delete %s: %w", saleID, err)
	}
	return &entry, nil
}
