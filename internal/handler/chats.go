package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/chatrooms/internal/auth"
	"github.com/johndosdos/chatrooms/internal/store"
)

type createChatRequest struct {
	Name    string `json:"name" validate:"max=100"`
	IsGroup bool   `json:"isGroup"`
}

// ListChats returns the rooms the caller participates in.
func ListChats(chats ChatStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		rooms, err := chats.ListChats(ctx, userID)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to list chats", "user_id", userID, "error", err)
			return
		}

		respondJSON(w, r, http.StatusOK, rooms)
	}
}

// CreateChat creates a room with the caller as its first participant.
func CreateChat(chats ChatStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		var req createChatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		room, err := chats.CreateChat(ctx, userID, req.Name, req.IsGroup)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to create chat", "user_id", userID, "error", err)
			return
		}

		respondJSON(w, r, http.StatusCreated, room)

		slog.InfoContext(ctx, "chat created",
			"chat_room_id", room.ID,
			"user_id", userID)
	}
}

// JoinChat adds the caller to a room.
func JoinChat(chats ChatStore) http.HandlerFunc {
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

		err = chats.AddParticipant(ctx, chatID, userID)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrChatNotFound):
			respondError(w, r, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, store.ErrAlreadyParticipant):
			respondError(w, r, http.StatusConflict, err.Error())
			return
		default:
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to add participant",
				"chat_room_id", chatID,
				"user_id", userID,
				"error", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)

		slog.InfoContext(ctx, "user joined chat",
			"chat_room_id", chatID,
			"user_id", userID)
	}
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil || chatID <= 0 {
		respondError(w, r, http.StatusBadRequest, "Invalid chat ID.")
		return 0, false
	}

	return chatID, true
}
