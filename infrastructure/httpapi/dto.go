package httpapi

import (
	"final-draft/domain"
	"final-draft/services"
	"time"

	"github.com/samber/lo"
)

type tokenResponse struct {
	Token string `json:"token"`
}

type createDirectRoomRequest struct {
	RecipientID domain.UserID `json:"recipient_id" validate:"required,gt=0"`
}

type createAssignmentRoomRequest struct {
	AssignmentID int64           `json:"-" validate:"gt=0"`
	MemberIDs    []domain.UserID `json:"member_ids" validate:"omitempty,dive,gt=0"`
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// listMessagesQuery holds the parsed query of a history page. Nil fields were not given.
type listMessagesQuery struct {
	Before *uint64
	Limit  *int `validate:"omitempty,gt=0"`
}

type userDTO struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
}

type messageDTO struct {
	ID        domain.MessageID `json:"id"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Sender    userDTO          `json:"sender"`
	Room      domain.RoomID    `json:"room"`
}

type lastMessageDTO struct {
	ID         domain.MessageID `json:"id"`
	Content    string           `json:"content"`
	SenderName string           `json:"sender_name"`
	Timestamp  time.Time        `json:"timestamp"`
}

type roomDTO struct {
	ID              domain.RoomID   `json:"id"`
	IsDirectMessage bool            `json:"is_direct_message"`
	CreatedAt       time.Time       `json:"created_at"`
	Members         []userDTO       `json:"members"`
	Assignment      *int64          `json:"assignment"`
	LastMessage     *lastMessageDTO `json:"last_message"`
}

type roomDetailDTO struct {
	roomDTO
	Messages []messageDTO `json:"messages"`
}

type messagePageDTO struct {
	Messages   []messageDTO      `json:"messages"`
	NextCursor *domain.MessageID `json:"next_cursor"`
}

func toUserDTO(identity domain.Identity, _ int) userDTO {
	return userDTO{
		ID:        identity.UserID,
		Username:  identity.Username,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
	}
}

func toMessageDTO(view services.MessageView, _ int) messageDTO {
	return messageDTO{
		ID:        view.ID,
		Content:   view.Content,
		Timestamp: view.CreatedAt.UTC(),
		Sender:    toUserDTO(view.Sender, 0),
		Room:      view.RoomID,
	}
}

func toRoomDTO(summary services.RoomSummary, _ int) roomDTO {
	dto := roomDTO{
		ID:              summary.Room.ID,
		IsDirectMessage: summary.Room.IsDirect,
		CreatedAt:       summary.Room.CreatedAt.UTC(),
		Members:         lo.Map(summary.Participants, toUserDTO),
		Assignment:      summary.Room.AssignmentID,
	}
	if last := summary.LastMessage; last != nil {
		dto.LastMessage = &lastMessageDTO{
			ID:         last.ID,
			Content:    last.Content,
			SenderName: last.Sender.Username,
			Timestamp:  last.CreatedAt.UTC(),
		}
	}
	return dto
}

func toRoomDetailDTO(detail services.RoomDetail) roomDetailDTO {
	return roomDetailDTO{
		roomDTO:  toRoomDTO(detail.RoomSummary, 0),
		Messages: lo.Map(detail.Messages, toMessageDTO),
	}
}

func toMessagePageDTO(page services.MessagePageView) messagePageDTO {
	return messagePageDTO{
		Messages:   lo.Map(page.Messages, toMessageDTO),
		NextCursor: page.NextCursor,
	}
}
