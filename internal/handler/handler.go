// Package handler holds the HTTP side of the service: accounts, chat rooms,
// message history, health checks and the WebSocket upgrade.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/johndosdos/chatrooms/internal/model"
	"github.com/johndosdos/chatrooms/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// AccountStore backs registration and login.
type AccountStore interface {
	CreateUser(ctx context.Context, username, email, hashedPassword string) (model.User, error)
	GetCredentials(ctx context.Context, username string) (store.Credentials, error)
	GetUser(ctx context.Context, userID int64) (model.User, error)
}

// ChatStore backs room management and message history.
type ChatStore interface {
	ListChats(ctx context.Context, userID int64) ([]model.ChatRoom, error)
	CreateChat(ctx context.Context, creatorID int64, name string, isGroup bool) (model.ChatRoom, error)
	AddParticipant(ctx context.Context, chatRoomID, userID int64) error
	IsParticipant(ctx context.Context, chatRoomID, userID int64) (bool, error)
	ListRecentMessages(ctx context.Context, chatRoomID int64, limit int) ([]model.Message, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response",
			"path", r.URL.Path,
			"error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, r, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %q: failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}

	return nil
}
