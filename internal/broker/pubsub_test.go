package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johndosdos/chatrooms/internal/model"
)

type recorder struct {
	msgs       []model.Message
	recipients [][]int64
}

func (r *recorder) Dispatch(_ context.Context, msg model.Message, recipients []int64) error {
	r.msgs = append(r.msgs, msg)
	r.recipients = append(r.recipients, recipients)
	return nil
}

func TestRoomSubject(t *testing.T) {
	require.Equal(t, "CHAT.room.7", RoomSubject(7))
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	msg := model.Message{
		ID:         3,
		ChatRoomID: 7,
		SenderID:   1,
		Body:       "hi",
		CreatedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("valid", func(t *testing.T) {
		data, err := json.Marshal(Envelope{Message: msg, Recipients: []int64{2, 4}})
		require.NoError(t, err)

		r := &recorder{}
		require.NoError(t, deliver(ctx, data, r))
		require.Equal(t, []model.Message{msg}, r.msgs)
		require.Equal(t, [][]int64{{2, 4}}, r.recipients)
	})

	tests := []struct {
		name string
		data string
	}{
		{"garbage", "not json"},
		{"no_recipients", `{"message":{"id":3,"chatRoomId":7},"recipients":[]}`},
		{"no_message", `{"recipients":[2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			require.Error(t, deliver(ctx, []byte(tt.data), r))
			require.Empty(t, r.msgs)
		})
	}
}
