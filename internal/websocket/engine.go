// Package websocket implements the real-time side of the chat service: the
// registry of live connections, and the engine that authenticates a
// connection, stores the messages it sends and fans them out to the other
// participants of the room.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/johndosdos/chatrooms/internal/cache"
	"github.com/johndosdos/chatrooms/internal/model"
)

// TokenVerifier resolves a bearer credential to a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (int64, error)
}

// MembershipStore is the source of truth for who belongs to which room.
type MembershipStore interface {
	IsParticipant(ctx context.Context, chatRoomID, userID int64) (bool, error)
	ListParticipantIDs(ctx context.Context, chatRoomID int64) ([]int64, error)
}

// MessageStore persists messages and assigns their ids.
type MessageStore interface {
	AddMessage(ctx context.Context, chatRoomID, senderID int64, body string) (model.Message, error)
}

type sanitizer interface {
	Sanitize(s string) string
}

// Options bounds the resources a single connection may use.
type Options struct {
	WriteTimeout  time.Duration
	PingInterval  time.Duration // zero disables keepalive pings
	CacheTimeout  time.Duration // bound on each best-effort cache push
	SendQueue     int
	ReadLimit     int64
	MessageRate   int
	MessageWindow time.Duration
}

func DefaultOptions() Options {
	return Options{
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		CacheTimeout:  500 * time.Millisecond,
		SendQueue:     64,
		ReadLimit:     32 << 10,
		MessageRate:   30,
		MessageWindow: time.Minute,
	}
}

// Deps are the collaborators of an Engine. A nil Dispatcher fans out through
// Registry directly.
type Deps struct {
	Verifier   TokenVerifier
	Members    MembershipStore
	Messages   MessageStore
	Cache      cache.Cache
	Registry   *Registry
	Dispatcher Dispatcher
}

// Engine runs the protocol for every accepted connection. It is safe for
// concurrent use; each connection is served by its own Serve call.
type Engine struct {
	verifier   TokenVerifier
	members    MembershipStore
	messages   MessageStore
	cache      cache.Cache
	registry   *Registry
	dispatcher Dispatcher
	sanitizer  sanitizer
	validate   *validator.Validate
	opts       Options
}

func NewEngine(deps Deps, opts Options) *Engine {
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = deps.Registry
	}

	return &Engine{
		verifier:   deps.Verifier,
		members:    deps.Members,
		messages:   deps.Messages,
		cache:      deps.Cache,
		registry:   deps.Registry,
		dispatcher: dispatcher,
		sanitizer:  bluemonday.StrictPolicy(),
		validate:   validator.New(),
		opts:       opts,
	}
}

// Serve drives one accepted connection until it closes. token is the bearer
// credential supplied with the upgrade request. The returned error is nil for
// a normal closure and otherwise wraps ErrUnauthorized or
// ErrTransportFailure.
func (e *Engine) Serve(ctx context.Context, ws *websocket.Conn, token string) error {
	s := &session{state: StateConnecting}
	s.advance(ctx, StateAuthenticating)

	userID, err := e.verifier.VerifyToken(ctx, token)
	if err != nil {
		s.advance(ctx, StateClosing)
		if closeErr := ws.Close(websocket.StatusPolicyViolation, "unauthorized"); closeErr != nil {
			ws.CloseNow() //nolint:errcheck
		}
		s.advance(ctx, StateClosed)
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	ws.SetReadLimit(e.opts.ReadLimit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newConn(ws, userID, e.opts.SendQueue, e.opts.WriteTimeout)
	s.userID, s.connID = userID, c.ID.String()

	e.registry.Register(userID, c)
	s.advance(ctx, StateAuthenticated)
	slog.InfoContext(ctx, "connection authenticated",
		"user_id", userID,
		"conn_id", s.connID,
		"user_connections", e.registry.Count(userID))

	defer func() {
		s.advance(ctx, StateClosing)
		e.registry.Unregister(userID, c)
		c.Close(websocket.StatusNormalClosure, "")
		s.advance(ctx, StateClosed)
		slog.InfoContext(ctx, "connection closed",
			"user_id", userID,
			"conn_id", s.connID)
	}()

	go c.writeLoop(ctx, func(err error) {
		slog.WarnContext(ctx, "write failed; dropping connection",
			"user_id", userID,
			"conn_id", s.connID,
			"error", err)
		e.registry.Unregister(userID, c)
		cancel()
	})

	if e.opts.PingInterval > 0 {
		go e.keepalive(ctx, ws, func(err error) {
			slog.InfoContext(ctx, "keepalive failed; dropping connection",
				"user_id", userID,
				"conn_id", s.connID,
				"error", err)
			e.registry.Unregister(userID, c)
			cancel()
		})
	}

	limiter := e.newLimiter()

	for {
		msgType, p, err := ws.Read(ctx)
		if err != nil {
			return readError(err)
		}

		var (
			chatRoomID int64
			ack        []byte
		)
		switch {
		case msgType != websocket.MessageText:
			err = fmt.Errorf("%w: binary frames are not supported", ErrMalformedPayload)
		case !limiter.Allow():
			err = ErrRateLimited
		default:
			chatRoomID, ack, err = e.handle(ctx, userID, p)
		}

		if err == nil {
			if !c.Enqueue(ack) {
				return fmt.Errorf("%w: send queue full", ErrTransportFailure)
			}
			continue
		}

		slog.InfoContext(ctx, "message rejected",
			"user_id", userID,
			"conn_id", s.connID,
			"chat_room_id", chatRoomID,
			"error", err)
		if !c.Enqueue(encodeError(err, chatRoomID)) {
			return fmt.Errorf("%w: send queue full", ErrTransportFailure)
		}
	}
}

// keepalive pings the peer every PingInterval. Proxies drop idle
// connections, and a peer that stops answering is only noticed this way.
func (e *Engine) keepalive(ctx context.Context, ws *websocket.Conn, onDead func(error)) {
	ticker := time.NewTicker(e.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, e.opts.WriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()

			if err != nil {
				if ctx.Err() == nil {
					onDead(err)
				}
				return
			}
		}
	}
}

// cleanBody strips markup from a message body. Bodies are stored as plain
// text, so the entities the policy escapes are decoded again.
func (e *Engine) cleanBody(s string) string {
	return strings.TrimSpace(html.UnescapeString(e.sanitizer.Sanitize(s)))
}

func (e *Engine) newLimiter() *rate.Limiter {
	if e.opts.MessageRate <= 0 || e.opts.MessageWindow <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	every := e.opts.MessageWindow / time.Duration(e.opts.MessageRate)
	return rate.NewLimiter(rate.Every(every), e.opts.MessageRate)
}

// handle runs authorize, persist, cache and fan out for one inbound frame and
// returns the ack for the sender. The returned error is reported to the
// sender only.
func (e *Engine) handle(ctx context.Context, userID int64, p []byte) (int64, []byte, error) {
	var in InboundFrame
	if err := json.Unmarshal(p, &in); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	in.Message = e.cleanBody(in.Message)
	if err := e.validate.Struct(in); err != nil {
		return in.ChatRoomID, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	ok, err := e.members.IsParticipant(ctx, in.ChatRoomID, userID)
	if err != nil {
		return in.ChatRoomID, nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return in.ChatRoomID, nil, ErrAuthorizationDenied
	}

	msg, err := e.messages.AddMessage(ctx, in.ChatRoomID, userID, in.Message)
	if err != nil {
		return in.ChatRoomID, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.pushCache(ctx, msg)
	e.fanOut(ctx, msg)

	// Marshalling a struct of ints and a time cannot fail.
	ack, _ := json.Marshal(AckFrame{
		Type:       FrameTypeAck,
		ID:         msg.ID,
		ChatRoomID: msg.ChatRoomID,
		CreatedAt:  msg.CreatedAt,
	})

	return msg.ChatRoomID, ack, nil
}

// pushCache is best-effort: failures and timeouts are logged and dropped.
func (e *Engine) pushCache(ctx context.Context, msg model.Message) {
	if e.opts.CacheTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.CacheTimeout)
		defer cancel()
	}

	if err := e.cache.Push(ctx, msg.ChatRoomID, msg); err != nil {
		slog.WarnContext(ctx, "failed to cache message",
			"chat_room_id", msg.ChatRoomID,
			"message_id", msg.ID,
			"error", err)
	}
}

func (e *Engine) fanOut(ctx context.Context, msg model.Message) {
	ids, err := e.members.ListParticipantIDs(ctx, msg.ChatRoomID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list recipients",
			"chat_room_id", msg.ChatRoomID,
			"message_id", msg.ID,
			"error", fmt.Errorf("%w: %w", ErrDeliveryFailure, err))
		return
	}

	recipients := lo.Without(lo.Uniq(ids), msg.SenderID)
	if len(recipients) == 0 {
		return
	}

	if err := e.dispatcher.Dispatch(ctx, msg, recipients); err != nil {
		slog.ErrorContext(ctx, "failed to dispatch message",
			"chat_room_id", msg.ChatRoomID,
			"message_id", msg.ID,
			"error", err)
	}
}

// readError maps the error that ended the read loop to the protocol error
// taxonomy.
func readError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}
