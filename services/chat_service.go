package services

import (
	"context"
	stdErrors "errors"
	"final-draft/contract"
	"final-draft/domain"
	"final-draft/domain/event"
	"final-draft/errors"
	"final-draft/observability"
	"final-draft/repositories"
	"final-draft/runtime"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/lo"
)

const roomDetailMessages = 50

type Censor interface {
	Censor(content string) (string, []string)
}

type IChatService interface {
	Join(ctx context.Context, identity domain.Identity, roomID domain.RoomID, sink contract.EventSink) error
	Leave(roomID domain.RoomID, sink contract.EventSink)
	Send(ctx context.Context, sender domain.Identity, roomID domain.RoomID, content string) (domain.Message, error)
	PostMessage(ctx context.Context, sender domain.Identity, roomID domain.RoomID, content string) (MessageView, error)
	ListRooms(ctx context.Context, userID domain.UserID) ([]RoomSummary, error)
	GetRoomDetail(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (RoomDetail, error)
	GetMessages(ctx context.Context, userID domain.UserID, roomID domain.RoomID, before *domain.MessageID, limit int) (MessagePageView, error)
	CreateDirectRoom(ctx context.Context, userID, recipientID domain.UserID) (RoomSummary, bool, error)
	CreateAssignmentRoom(ctx context.Context, userID domain.UserID, assignmentID int64, members []domain.UserID) (RoomSummary, bool, error)
}

type MessageView struct {
	domain.Message
	Sender domain.Identity
}

type RoomSummary struct {
	Room         domain.Room
	Participants []domain.Identity
	LastMessage  *MessageView
}

type RoomDetail struct {
	RoomSummary
	Messages []MessageView
}

type MessagePageView struct {
	Messages   []MessageView
	NextCursor *domain.MessageID
}

// ChatService ties the membership relation, the message store and the broadcaster together.
type ChatService struct {
	rooms            repositories.IRoomRepository
	messages         repositories.IMessageRepository
	users            repositories.IUserRepository
	registry         contract.IRegistry
	censor           Censor
	metrics          *observability.Metrics
	log              *slog.Logger
	maxContentLength int
	locks            runtime.RoomLocks
}

func NewChatService(
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	registry contract.IRegistry,
	censor Censor,
	metrics *observability.Metrics,
	log *slog.Logger,
	maxContentLength int,
) *ChatService {
	return &ChatService{
		rooms:            rooms,
		messages:         messages,
		users:            users,
		registry:         registry,
		censor:           censor,
		metrics:          metrics,
		log:              log,
		maxContentLength: maxContentLength,
	}
}

// authorize asks the membership relation on every call. A store failure is a denial.
func (s *ChatService) authorize(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error {
	member, err := s.rooms.IsMember(ctx, userID, roomID)
	if err != nil {
		s.log.Error("Membership check failed, denying", "room_id", roomID, "user_id", userID, "error", err)
		return errors.ErrNotMember
	}
	if !member {
		return errors.ErrNotMember
	}
	return nil
}

// Join subscribes sink to the room once the user is known to be a member.
// When Join returns nil, every later publication of the room reaches sink.
func (s *ChatService) Join(ctx context.Context, identity domain.Identity, roomID domain.RoomID, sink contract.EventSink) error {
	if identity.IsAnonymous() {
		return errors.ErrUnauthenticated
	}
	if err := s.authorize(ctx, identity.UserID, roomID); err != nil {
		return err
	}
	s.registry.Subscribe(roomID, sink)
	s.log.Debug("Joined room", "room_id", roomID, "user_id", identity.UserID)
	return nil
}

func (s *ChatService) Leave(roomID domain.RoomID, sink contract.EventSink) {
	s.registry.Unsubscribe(roomID, sink)
}

// Send stores the message then publishes it to the room, sender included.
// Both steps run under the room lock so subscribers receive messages in storage order.
// They also outlive the caller: a message accepted by the store is always published.
func (s *ChatService) Send(ctx context.Context, sender domain.Identity, roomID domain.RoomID, content string) (domain.Message, error) {
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return domain.Message{}, errors.ErrContentTooLong
	}
	if s.censor != nil {
		censored, words := s.censor.Censor(content)
		if len(words) > 0 {
			s.log.Info("Message censored", "room_id", roomID, "user_id", sender.UserID, "words", len(words))
		}
		content = censored
	}

	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock(roomID)
	defer unlock()

	message, err := s.messages.AppendMessage(ctx, roomID, sender.UserID, content)
	if err != nil {
		s.metrics.PersistenceFailed()
		s.log.Error("Message could not be saved", "room_id", roomID, "user_id", sender.UserID, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	s.metrics.MessagePersisted()

	s.registry.Publish(ctx, roomID, event.NewMessagePosted(message, sender))
	return message, nil
}

// PostMessage is the REST entry point: membership is checked on the call itself.
func (s *ChatService) PostMessage(ctx context.Context, sender domain.Identity, roomID domain.RoomID, content string) (MessageView, error) {
	if err := s.authorize(ctx, sender.UserID, roomID); err != nil {
		return MessageView{}, err
	}
	message, err := s.Send(ctx, sender, roomID, content)
	if err != nil {
		return MessageView{}, err
	}
	return MessageView{Message: message, Sender: sender}, nil
}

// ListRooms returns the rooms of the user, newest first, each with its last message.
func (s *ChatService) ListRooms(ctx context.Context, userID domain.UserID) ([]RoomSummary, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	identities := newIdentityCache(s.users)
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary, err := s.summarize(ctx, room, identities)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ChatService) GetRoomDetail(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (RoomDetail, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return RoomDetail{}, err
	}
	if !room.HasMember(userID) {
		return RoomDetail{}, errors.ErrNotMember
	}
	identities := newIdentityCache(s.users)
	summary, err := s.summarize(ctx, room, identities)
	if err != nil {
		return RoomDetail{}, err
	}
	page, err := s.messages.GetMessages(ctx, roomID, nil, roomDetailMessages)
	if err != nil {
		return RoomDetail{}, err
	}
	messages, err := identities.views(ctx, page.Messages)
	if err != nil {
		return RoomDetail{}, err
	}
	return RoomDetail{RoomSummary: summary, Messages: messages}, nil
}

// GetMessages pages through the room log, newest first.
func (s *ChatService) GetMessages(ctx context.Context, userID domain.UserID, roomID domain.RoomID, before *domain.MessageID, limit int) (MessagePageView, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return MessagePageView{}, err
	}
	page, err := s.messages.GetMessages(ctx, roomID, before, limit)
	if err != nil {
		return MessagePageView{}, err
	}
	messages, err := newIdentityCache(s.users).views(ctx, page.Messages)
	if err != nil {
		return MessagePageView{}, err
	}
	return MessagePageView{Messages: messages, NextCursor: page.NextCursor}, nil
}

// CreateDirectRoom gets or creates the conversation between the caller and recipient.
func (s *ChatService) CreateDirectRoom(ctx context.Context, userID, recipientID domain.UserID) (RoomSummary, bool, error) {
	if _, err := s.users.GetUserByID(ctx, recipientID); err != nil {
		return RoomSummary{}, false, err
	}
	room, created, err := s.rooms.GetOrCreateDirectRoom(ctx, userID, recipientID)
	if err != nil {
		return RoomSummary{}, false, err
	}
	summary, err := s.summarize(ctx, room, newIdentityCache(s.users))
	return summary, created, err
}

// CreateAssignmentRoom gets or creates the room of an assignment.
// The creator joins the new room with the given members. Once the room exists
// only its members may see it or add others.
func (s *ChatService) CreateAssignmentRoom(ctx context.Context, userID domain.UserID, assignmentID int64, members []domain.UserID) (RoomSummary, bool, error) {
	identities := newIdentityCache(s.users)
	for _, member := range members {
		user, err := s.users.GetUserByID(ctx, member)
		if err != nil {
			return RoomSummary{}, false, err
		}
		identities.known[member] = user.Identity()
	}
	room, created, err := s.rooms.GetOrCreateAssignmentRoom(ctx, assignmentID, append([]domain.UserID{userID}, members...))
	if err != nil {
		return RoomSummary{}, false, err
	}
	if !created {
		if err = s.authorize(ctx, userID, room.ID); err != nil {
			return RoomSummary{}, false, err
		}
		if newcomers := lo.Reject(members, func(m domain.UserID, _ int) bool { return room.HasMember(m) }); len(newcomers) > 0 {
			if err = s.rooms.AddMembers(ctx, room.ID, newcomers...); err != nil {
				return RoomSummary{}, false, err
			}
			if room, err = s.rooms.GetRoom(ctx, room.ID); err != nil {
				return RoomSummary{}, false, err
			}
		}
	}
	summary, err := s.summarize(ctx, room, identities)
	return summary, created, err
}

func (s *ChatService) summarize(ctx context.Context, room domain.Room, identities *identityCache) (RoomSummary, error) {
	summary := RoomSummary{Room: room}
	for _, member := range room.Members {
		identity, err := identities.get(ctx, member)
		if err != nil {
			return RoomSummary{}, err
		}
		summary.Participants = append(summary.Participants, identity)
	}
	last, err := s.messages.LastMessage(ctx, room.ID)
	if err != nil {
		return RoomSummary{}, err
	}
	if last != nil {
		views, err := identities.views(ctx, []domain.Message{*last})
		if err != nil {
			return RoomSummary{}, err
		}
		summary.LastMessage = &views[0]
	}
	return summary, nil
}

// identityCache resolves each user once per request.
type identityCache struct {
	users repositories.IUserRepository
	known map[domain.UserID]domain.Identity
}

func newIdentityCache(users repositories.IUserRepository) *identityCache {
	return &identityCache{users: users, known: make(map[domain.UserID]domain.Identity)}
}

// get keeps a bare identity for users that no longer exist.
func (c *identityCache) get(ctx context.Context, userID domain.UserID) (domain.Identity, error) {
	if identity, ok := c.known[userID]; ok {
		return identity, nil
	}
	user, err := c.users.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		c.known[userID] = user.Identity()
	case stdErrors.Is(err, errors.ErrUserNotFound):
		c.known[userID] = domain.Identity{UserID: userID}
	default:
		return domain.Identity{}, err
	}
	return c.known[userID], nil
}

func (c *identityCache) views(ctx context.Context, messages []domain.Message) ([]MessageView, error) {
	views := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		sender, err := c.get(ctx, message.SenderID)
		if err != nil {
			return nil, err
		}
		views = append(views, MessageView{Message: message, Sender: sender})
	}
	return views, nil
}
