package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/johndosdos/chatrooms/internal/auth"
)

// Middleware validates the client's bearer JWT and stores the user ID in the
// request context for the next handler.
func Middleware(next http.Handler, secret, issuer string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.GetBearerToken(r.Header)
		if err != nil {
			unauthorized(w, r)
			return
		}

		userID, err := auth.ValidateJWT(token, secret, issuer)
		if err != nil {
			slog.DebugContext(r.Context(), "rejected access token",
				"path", r.URL.Path,
				"error", err)
			unauthorized(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="chatrooms"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized."}); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
