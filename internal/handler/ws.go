package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/johndosdos/chatrooms/internal/auth"
	ws "github.com/johndosdos/chatrooms/internal/websocket"
)

// Server runs the real-time protocol on an upgraded connection.
type Server interface {
	Serve(ctx context.Context, conn *websocket.Conn, token string) error
}

// ServeWs handles the client's websocket connection upgrade. The bearer
// token travels as the "token" query parameter or the Authorization header;
// it is checked by the engine after the upgrade so a failure can be reported
// with a policy-violation close.
func ServeWs(engine Server, allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: allowedOrigins,
		})
		if err != nil {
			slog.WarnContext(ctx, "websocket upgrade failed", "error", err)
			return
		}

		err = engine.Serve(ctx, conn, token)
		switch {
		case err == nil:
		case errors.Is(err, ws.ErrUnauthorized):
			slog.InfoContext(ctx, "websocket rejected", "error", err)
		default:
			slog.WarnContext(ctx, "websocket closed", "error", err)
		}
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	// A missing header leaves the token empty; the engine rejects it.
	token, _ := auth.GetBearerToken(r.Header)
	return token
}
