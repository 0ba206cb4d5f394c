package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/johndosdos/chatrooms/internal/auth"
	"github.com/johndosdos/chatrooms/internal/cache"
	"github.com/johndosdos/chatrooms/internal/model"
)

// ListMessages returns the latest messages of a room, newest first. The
// recent-message cache answers when it holds a full page; otherwise the store
// does and the cache is refilled from its answer.
func ListMessages(chats ChatStore, recent cache.Cache, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		chatID, ok := chatIDParam(w, r)
		if !ok {
			return
		}

		member, err := chats.IsParticipant(ctx, chatID, userID)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to check membership",
				"chat_room_id", chatID,
				"user_id", userID,
				"error", err)
			return
		}
		if !member {
			respondError(w, r, http.StatusForbidden, "Not a participant of this chat.")
			return
		}

		msgs, err := recent.List(ctx, chatID)
		if err != nil {
			slog.WarnContext(ctx, "cache read failed; using store",
				"chat_room_id", chatID,
				"error", err)
			msgs = nil
		}

		// A short list may be a cache that lost its older entries (restart,
		// flush) and has only seen pushes since. Only a full list is trusted.
		if len(msgs) < limit {
			stored, err := chats.ListRecentMessages(ctx, chatID, limit)
			if err != nil {
				respondError(w, r, http.StatusInternalServerError, "Database error.")
				slog.ErrorContext(ctx, "failed to load messages from database",
					"chat_room_id", chatID,
					"error", err)
				return
			}

			msgs = refill(ctx, recent, chatID, stored)
		}

		if msgs == nil {
			msgs = []model.Message{}
		}

		respondJSON(w, r, http.StatusOK, msgs)
	}
}

// refill merges stored into the cache and returns the merged view, which also
// keeps pushes that raced the store read. If the cache cannot help, the store
// rows are the answer.
func refill(ctx context.Context, recent cache.Cache, chatID int64, stored []model.Message) []model.Message {
	if len(stored) == 0 {
		return stored
	}

	if err := recent.Warm(ctx, chatID, stored); err != nil {
		slog.WarnContext(ctx, "failed to warm cache",
			"chat_room_id", chatID,
			"error", err)
		return stored
	}

	merged, err := recent.List(ctx, chatID)
	if err != nil || len(merged) < len(stored) {
		return stored
	}

	return merged
}
