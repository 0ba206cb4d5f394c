package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/chatrooms/internal/auth"
	"github.com/johndosdos/chatrooms/internal/store"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanumunicode"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type profileResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Register creates an account.
func Register(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		hashedPw, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Server error.")
			slog.ErrorContext(ctx, "argon2id hash creation failed", "error", err)
			return
		}

		user, err := accounts.CreateUser(ctx, req.Username, strings.ToLower(req.Email), hashedPw)
		if err != nil {
			if errors.Is(err, store.ErrUsernameTaken) {
				respondError(w, r, http.StatusConflict, err.Error())
				return
			}
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to create user", "error", err)
			return
		}

		respondJSON(w, r, http.StatusCreated, user)

		slog.InfoContext(ctx, "user signed up",
			slog.String("username", user.Username))
	}
}

// Login exchanges a username and password for a bearer access token.
func Login(accounts AccountStore, secret, issuer string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		creds, err := accounts.GetCredentials(ctx, req.Username)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				respondError(w, r, http.StatusUnauthorized, "Invalid username or password.")
				return
			}
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to retrieve user", "error", err)
			return
		}

		ok, err := auth.CheckPasswordHash(req.Password, creds.HashedPassword)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Server error.")
			slog.ErrorContext(ctx, "cannot verify password, hash may be corrupted", "error", err)
			return
		}
		if !ok {
			respondError(w, r, http.StatusUnauthorized, "Invalid username or password.")
			return
		}

		token, err := auth.MakeJWT(creds.User.ID, secret, issuer, ttl)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Server error.")
			slog.ErrorContext(ctx, "failed to sign access token", "error", err)
			return
		}

		respondJSON(w, r, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})

		slog.InfoContext(ctx, "user logged in",
			slog.String("username", creds.User.Username))
	}
}

// Me returns the authenticated caller.
func Me(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		user, err := accounts.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				respondError(w, r, http.StatusNotFound, err.Error())
				return
			}
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to retrieve user", "error", err)
			return
		}

		respondJSON(w, r, http.StatusOK, profileResponse{ID: user.ID, Username: user.Username})
	}
}

// GetUser returns another account's public profile.
func GetUser(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || userID <= 0 {
			respondError(w, r, http.StatusBadRequest, "Invalid user ID.")
			return
		}

		user, err := accounts.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				respondError(w, r, http.StatusNotFound, err.Error())
				return
			}
			respondError(w, r, http.StatusInternalServerError, "Database error.")
			slog.ErrorContext(ctx, "failed to retrieve user", "user_id", userID, "error", err)
			return
		}

		respondJSON(w, r, http.StatusOK, profileResponse{ID: user.ID, Username: user.Username})
	}
}
