// Package model defines data structure.
package model

import "time"

// Message is a persisted chat message. Its JSON form is the broadcast frame
// pushed to other participants of the room.
type Message struct {
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chatRoomId"`
	SenderID   int64     `json:"senderId"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}
