// Package store adapts the generated queries to the chat domain: the
// membership and message stores used by the real-time engine, plus the
// account and room bookkeeping behind the HTTP API.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johndosdos/chatrooms/internal/database"
	"github.com/johndosdos/chatrooms/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrChatNotFound       = errors.New("chat not found")
	ErrAlreadyParticipant = errors.New("user is already a participant in this chat")
)

// Credentials is a user row including the password hash. It never leaves the
// server.
type Credentials struct {
	User           model.User
	HashedPassword string
}

// Postgres is the durable store.
type Postgres struct {
	pool *pgxpool.Pool
	q    *database.Queries
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: database.New(pool)}
}

// Ping checks connectivity for the readiness check.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) IsParticipant(ctx context.Context, chatRoomID, userID int64) (bool, error) {
	ok, err := s.q.IsParticipant(ctx, database.IsParticipantParams{ChatID: chatRoomID, UserID: userID})
	if err != nil {
		return false, fmt.Errorf("internal/store: is participant: %w", err)
	}

	return ok, nil
}

func (s *Postgres) ListParticipantIDs(ctx context.Context, chatRoomID int64) ([]int64, error) {
	ids, err := s.q.ListParticipantIDs(ctx, chatRoomID)
	if err != nil {
		return nil, fmt.Errorf("internal/store: list participants: %w", err)
	}

	return ids, nil
}

// AddMessage persists body and returns the message with its store-assigned
// id and timestamp.
func (s *Postgres) AddMessage(ctx context.Context, chatRoomID, senderID int64, body string) (model.Message, error) {
	row, err := s.q.CreateMessage(ctx, database.CreateMessageParams{
		ChatID:   chatRoomID,
		SenderID: senderID,
		Message:  body,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("internal/store: add message: %w", err)
	}

	return toMessage(row), nil
}

// ListRecentMessages returns up to limit messages of a room, newest first.
func (s *Postgres) ListRecentMessages(ctx context.Context, chatRoomID int64, limit int) ([]model.Message, error) {
	rows, err := s.q.ListRecentMessages(ctx, database.ListRecentMessagesParams{
		ChatID: chatRoomID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("internal/store: list messages: %w", err)
	}

	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, toMessage(row))
	}

	return out, nil
}

func (s *Postgres) CreateUser(ctx context.Context, username, email, hashedPassword string) (model.User, error) {
	row, err := s.q.CreateUser(ctx, database.CreateUserParams{
		Username:       username,
		Email:          pgtype.Text{String: email, Valid: email != ""},
		HashedPassword: hashedPassword,
	})
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return model.User{}, ErrUsernameTaken
		}
		return model.User{}, fmt.Errorf("internal/store: create user: %w", err)
	}

	return toUser(row), nil
}

func (s *Postgres) GetCredentials(ctx context.Context, username string) (Credentials, error) {
	row, err := s.q.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, ErrUserNotFound
		}
		return Credentials{}, fmt.Errorf("internal/store: get user: %w", err)
	}

	return Credentials{User: toUser(row), HashedPassword: row.HashedPassword}, nil
}

func (s *Postgres) GetUser(ctx context.Context, userID int64) (model.User, error) {
	row, err := s.q.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("internal/store: get user: %w", err)
	}

	return toUser(row), nil
}

// CreateChat creates a room and makes creatorID its first participant in a
// single transaction.
func (s *Postgres) CreateChat(ctx context.Context, creatorID int64, name string, isGroup bool) (model.ChatRoom, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ChatRoom{}, fmt.Errorf("internal/store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	qtx := s.q.WithTx(tx)

	name = strings.TrimSpace(name)
	room, err := qtx.CreateChatRoom(ctx, database.CreateChatRoomParams{
		Name:    pgtype.Text{String: name, Valid: name != ""},
		IsGroup: isGroup,
	})
	if err != nil {
		return model.ChatRoom{}, fmt.Errorf("internal/store: create chat: %w", err)
	}

	_, err = qtx.AddParticipant(ctx, database.AddParticipantParams{ChatID: room.ID, UserID: creatorID})
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return model.ChatRoom{}, ErrUserNotFound
		}
		return model.ChatRoom{}, fmt.Errorf("internal/store: add creator: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ChatRoom{}, fmt.Errorf("internal/store: commit: %w", err)
	}

	return toChatRoom(room), nil
}

func (s *Postgres) AddParticipant(ctx context.Context, chatRoomID, userID int64) error {
	_, err := s.q.AddParticipant(ctx, database.AddParticipantParams{ChatID: chatRoomID, UserID: userID})
	switch {
	case err == nil:
		return nil
	case isPgError(err, pgUniqueViolation):
		return ErrAlreadyParticipant
	case isPgError(err, pgForeignKeyViolation):
		// Either side may be missing; the room is the one callers can act on.
		if _, getErr := s.q.GetChatRoom(ctx, chatRoomID); errors.Is(getErr, pgx.ErrNoRows) {
			return ErrChatNotFound
		}
		return ErrUserNotFound
	default:
		return fmt.Errorf("internal/store: add participant: %w", err)
	}
}

func (s *Postgres) ListChats(ctx context.Context, userID int64) ([]model.ChatRoom, error) {
	rows, err := s.q.ListChatRoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("internal/store: list chats: %w", err)
	}

	out := make([]model.ChatRoom, 0, len(rows))
	for _, row := range rows {
		out = append(out, toChatRoom(row))
	}

	return out, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func toMessage(row database.ChatMessage) model.Message {
	return model.Message{
		ID:         row.ID,
		ChatRoomID: row.ChatID,
		SenderID:   row.SenderID,
		Body:       row.Message,
		CreatedAt:  row.CreatedAt.Time.UTC(),
	}
}

func toUser(row database.User) model.User {
	return model.User{
		ID:        row.ID,
		Username:  row.Username,
		Email:     row.Email.String,
		CreatedAt: row.CreatedAt.Time.UTC(),
	}
}

func toChatRoom(row database.ChatRoom) model.ChatRoom {
	return model.ChatRoom{
		ID:        row.ID,
		Name:      row.Name.String,
		IsGroup:   row.IsGroup,
		CreatedAt: row.CreatedAt.Time.UTC(),
	}
}
