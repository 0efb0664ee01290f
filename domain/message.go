// Package domain contains core concepts of the chat system.
// Messages are immutable once the store has assigned their id and timestamp.
package domain

import (
	"time"
)

type MessageID uint64

// Message represents an immutable chat entry of a room log.
type Message struct {
	ID        MessageID
	RoomID    RoomID
	SenderID  UserID
	Content   string
	CreatedAt time.Time
}

// MessagePage is a slice of a room log, newest first.
// NextCursor is nil once the oldest message has been returned.
type MessagePage struct {
	Messages   []Message
	NextCursor *MessageID
}
