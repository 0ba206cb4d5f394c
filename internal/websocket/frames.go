package websocket

import (
	"encoding/json"
	"time"
)

const (
	FrameTypeAck   = "ack"
	FrameTypeError = "error"
)

// InboundFrame is what a client sends to post a message.
type InboundFrame struct {
	ChatRoomID int64  `json:"chatRoomId" validate:"required,gt=0"`
	Message    string `json:"message" validate:"required,max=4000"`
}

// AckFrame confirms to the sender that its message was stored.
type AckFrame struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chatRoomId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ErrorFrame reports a per-message failure. The connection stays open.
type ErrorFrame struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	ChatRoomID int64  `json:"chatRoomId,omitempty"`
}

func encodeError(err error, chatRoomID int64) []byte {
	code, text := classify(err)

	// Marshalling a struct of strings and ints cannot fail.
	p, _ := json.Marshal(ErrorFrame{
		Type:       FrameTypeError,
		Code:       code,
		Message:    text,
		ChatRoomID: chatRoomID,
	})
	return p
}
