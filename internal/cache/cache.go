// Package cache keeps the most recent messages of each chat room so that
// "latest messages" reads can skip the database. The message store stays
// authoritative: losing the cache only costs a store read.
package cache

import (
	"context"
	"slices"

	"github.com/johndosdos/chatrooms/internal/model"
)

// DefaultCapacity is the number of messages kept per room.
const DefaultCapacity = 50

// Cache is a bounded, newest-first view of each room.
type Cache interface {
	// Push inserts msg as the newest entry of its room and evicts the oldest
	// entries beyond capacity.
	Push(ctx context.Context, chatRoomID int64, msg model.Message) error
	// List returns the cached messages of a room, newest first. A room with
	// nothing cached yields an empty slice, not an error.
	List(ctx context.Context, chatRoomID int64) ([]model.Message, error)
	// Warm merges msgs (read from the store) into the room so a cold cache
	// heals without dropping pushes that raced the store read.
	Warm(ctx context.Context, chatRoomID int64, msgs []model.Message) error
}

// merge combines two message lists, drops duplicate ids and returns at most
// capacity entries ordered by id, newest first.
func merge(a, b []model.Message, capacity int) []model.Message {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]model.Message, 0, len(a)+len(b))

	for _, list := range [][]model.Message{a, b} {
		for _, m := range list {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}

	slices.SortFunc(out, func(x, y model.Message) int {
		switch {
		case x.ID > y.ID:
			return -1
		case x.ID < y.ID:
			return 1
		default:
			return 0
		}
	})

	if len(out) > capacity {
		out = out[:capacity]
	}

	return out
}
