package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johndosdos/chatrooms/internal/testutil"
)

func TestPostgres(t *testing.T) {
	db := testutil.DbInit(t)
	s := NewPostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alice, err := s.CreateUser(ctx, "alice", "alice@test.com", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "", "hash")
	require.NoError(t, err)
	carol, err := s.CreateUser(ctx, "carol", "", "hash")
	require.NoError(t, err)

	t.Run("duplicate_username", func(t *testing.T) {
		_, err := s.CreateUser(ctx, "alice", "", "hash")
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("credentials", func(t *testing.T) {
		creds, err := s.GetCredentials(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, creds.User.ID)
		require.Equal(t, "hash", creds.HashedPassword)

		_, err = s.GetCredentials(ctx, "nobody")
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	room, err := s.CreateChat(ctx, alice.ID, "general", true)
	require.NoError(t, err)
	require.NoError(t, s.AddParticipant(ctx, room.ID, bob.ID))

	t.Run("membership", func(t *testing.T) {
		ok, err := s.IsParticipant(ctx, room.ID, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.IsParticipant(ctx, room.ID, carol.ID)
		require.NoError(t, err)
		require.False(t, ok)

		ids, err := s.ListParticipantIDs(ctx, room.ID)
		require.NoError(t, err)
		require.ElementsMatch(t, []int64{alice.ID, bob.ID}, ids)
	})

	t.Run("add_participant_errors", func(t *testing.T) {
		require.ErrorIs(t, s.AddParticipant(ctx, room.ID, bob.ID), ErrAlreadyParticipant)
		require.ErrorIs(t, s.AddParticipant(ctx, room.ID+1000, bob.ID), ErrChatNotFound)
	})

	t.Run("list_chats", func(t *testing.T) {
		chats, err := s.ListChats(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		require.Equal(t, "general", chats[0].Name)

		chats, err = s.ListChats(ctx, carol.ID)
		require.NoError(t, err)
		require.Empty(t, chats)
	})

	t.Run("messages_newest_first", func(t *testing.T) {
		first, err := s.AddMessage(ctx, room.ID, alice.ID, "one")
		require.NoError(t, err)
		second, err := s.AddMessage(ctx, room.ID, bob.ID, "two")
		require.NoError(t, err)
		require.Greater(t, second.ID, first.ID)
		require.False(t, first.CreatedAt.IsZero())

		msgs, err := s.ListRecentMessages(ctx, room.ID, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Equal(t, "two", msgs[0].Body)
		require.Equal(t, "one", msgs[1].Body)
	})

	t.Run("message_to_unknown_room", func(t *testing.T) {
		_, err := s.AddMessage(ctx, room.ID+1000, alice.ID, "lost")
		require.Error(t, err)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testutil.DbInit(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// DbInit already applied everything; a second run finds nothing pending.
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))
}
