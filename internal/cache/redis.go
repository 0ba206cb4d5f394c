package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/chatrooms/internal/model"
)

const warmRetries = 3

// Redis keeps each room as a list at chat:<id>:messages, newest at the head,
// so several server replicas share one cache.
type Redis struct {
	rdb      *redis.Client
	capacity int
}

func NewRedis(rdb *redis.Client, capacity int) *Redis {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Redis{rdb: rdb, capacity: capacity}
}

func roomKey(chatRoomID int64) string {
	return fmt.Sprintf("chat:%d:messages", chatRoomID)
}

// Push runs LPUSH and LTRIM in one MULTI so concurrent pushes to a room never
// leave it above capacity.
func (c *Redis) Push(ctx context.Context, chatRoomID int64, msg model.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("internal/cache: encode message: %w", err)
	}

	key := roomKey(chatRoomID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, int64(c.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("internal/cache: push: %w", err)
	}

	return nil
}

func (c *Redis) List(ctx context.Context, chatRoomID int64) ([]model.Message, error) {
	vals, err := c.rdb.LRange(ctx, roomKey(chatRoomID), 0, int64(c.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("internal/cache: list: %w", err)
	}

	return decode(ctx, chatRoomID, vals), nil
}

// Warm merges msgs into the room under WATCH, retrying when a concurrent push
// modifies the list mid-transaction.
func (c *Redis) Warm(ctx context.Context, chatRoomID int64, msgs []model.Message) error {
	key := roomKey(chatRoomID)

	txf := func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		merged := merge(decode(ctx, chatRoomID, vals), msgs, c.capacity)
		encoded := make([]any, 0, len(merged))
		for _, m := range merged {
			b, err := json.Marshal(m)
			if err != nil {
				return err
			}
			encoded = append(encoded, b)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(encoded) > 0 {
				pipe.RPush(ctx, key, encoded...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < warmRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("internal/cache: warm: %w", err)
		}
		return nil
	}

	return fmt.Errorf("internal/cache: warm: %w", redis.TxFailedErr)
}

// Ping checks connectivity for the readiness check.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func decode(ctx context.Context, chatRoomID int64, vals []string) []model.Message {
	out := make([]model.Message, 0, len(vals))
	for _, v := range vals {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			slog.WarnContext(ctx, "skipping undecodable cache entry",
				"chat_room_id", chatRoomID,
				"error", err)
			continue
		}
		out = append(out, m)
	}

	return out
}
