package event

import (
	"final-draft/domain"
	"time"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is the broadcast frame sent to every subscriber of a room,
// sender included.
type MessagePosted struct {
	Room      domain.RoomID    `json:"-"`
	Content   string           `json:"message"`
	Username  string           `json:"username"`
	UserID    domain.UserID    `json:"user_id"`
	MessageID domain.MessageID `json:"message_id"`
	Timestamp time.Time        `json:"timestamp"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Room
}

func NewMessagePosted(message domain.Message, sender domain.Identity) MessagePosted {
	return MessagePosted{
		Room:      message.RoomID,
		Content:   message.Content,
		Username:  sender.Username,
		UserID:    sender.UserID,
		MessageID: message.ID,
		Timestamp: message.CreatedAt.UTC(),
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	}
}

// MessageRejected is only ever written to the connection that sent the message.
type MessageRejected struct {
	Room   domain.RoomID `json:"-"`
	Reason string        `json:"error"`
}

func (m MessageRejected) RoomID() domain.RoomID {
	return m.Room
}
