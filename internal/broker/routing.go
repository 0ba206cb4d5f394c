package broker

import (
	"strconv"
	"time"
)

// NATS keeps this simpler than RabbitMQ: one stream, one subject per room.
const (
	StreamName    = "CHAT"
	SubjectPrefix = StreamName + ".room."
	SubjectAll    = SubjectPrefix + ">"

	// Fan-out is live-only. Anything older is of no use to a replica.
	streamMaxAge = time.Minute
)

func RoomSubject(chatRoomID int64) string {
	return SubjectPrefix + strconv.FormatInt(chatRoomID, 10)
}
