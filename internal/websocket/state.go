package websocket

import (
	"context"
	"log/slog"
)

// State is the lifecycle stage of one connection. States only move forward.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session tracks the state of the connection served by one Serve call.
type session struct {
	state  State
	userID int64
	connID string
}

// advance moves the session to next. Moving backwards or staying put is
// ignored, so cleanup paths may call it unconditionally.
func (s *session) advance(ctx context.Context, next State) bool {
	if next <= s.state {
		return false
	}

	slog.DebugContext(ctx, "connection state changed",
		"user_id", s.userID,
		"conn_id", s.connID,
		"from", s.state.String(),
		"to", next.String())
	s.state = next

	return true
}
