package services

import (
	"context"
	"final-draft/domain"
	"final-draft/domain/event"
	"final-draft/errors"
	"final-draft/mocks"
	"final-draft/moderation"
	"final-draft/runtime"
	"final-draft/sink"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	rooms    *mocks.MockIRoomRepository
	messages *mocks.MockIMessageRepository
	users    *mocks.MockIUserRepository
	registry *runtime.Registry
	service  *ChatService
}

func newChatFixture(t *testing.T, censor Censor) chatFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := chatFixture{
		rooms:    mocks.NewMockIRoomRepository(ctrl),
		messages: mocks.NewMockIMessageRepository(ctrl),
		users:    mocks.NewMockIUserRepository(ctrl),
		registry: runtime.NewRegistry(log, nil),
	}
	f.service = NewChatService(f.rooms, f.messages, f.users, f.registry, censor, nil, log, 100)
	return f
}

var (
	alice = domain.Identity{UserID: 1, Username: "alice", FirstName: "Alice", LastName: "Liddell"}
	bob   = domain.Identity{UserID: 2, Username: "bob", FirstName: "Bob", LastName: "Marley"}
)

func stored(roomID domain.RoomID, id domain.MessageID, sender domain.UserID, content string) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  sender,
		Content:   content,
		CreatedAt: time.Date(2026, 1, 1, 10, 0, 0, int(id), time.UTC),
	}
}

func TestChatService_Send_Echoes_To_Every_Member(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()
	roomID := domain.RoomID("dm_1_2")

	// Given alice and bob joined dm_1_2
	f.rooms.EXPECT().IsMember(gomock.Any(), alice.UserID, roomID).Return(true, nil)
	f.rooms.EXPECT().IsMember(gomock.Any(), bob.UserID, roomID).Return(true, nil)
	aliceSink, bobSink := sink.NewConnectionSink(4), sink.NewConnectionSink(4)
	req.NoError(f.service.Join(ctx, alice, roomID, aliceSink))
	req.NoError(f.service.Join(ctx, bob, roomID, bobSink))

	// When alice sends "hi"
	f.messages.EXPECT().AppendMessage(gomock.Any(), roomID, alice.UserID, "hi").
		Return(stored(roomID, 42, alice.UserID, "hi"), nil)
	message, err := f.service.Send(ctx, alice, roomID, "hi")
	req.NoError(err)

	// Then both connections receive the same frame, alice included
	expected := event.NewMessagePosted(message, alice)
	req.Equal(event.DomainEvent(expected), <-aliceSink.Events())
	req.Equal(event.DomainEvent(expected), <-bobSink.Events())
	req.Equal("hi", expected.Content)
	req.Equal(domain.MessageID(42), expected.MessageID)
	req.Equal("alice", expected.Username)
}

func TestChatService_Persistence_Failure_Publishes_Nothing(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := domain.RoomID("dm_1_2")
	listener := sink.NewConnectionSink(4)
	f.registry.Subscribe(roomID, listener)

	f.messages.EXPECT().AppendMessage(gomock.Any(), roomID, alice.UserID, "hi").
		Return(domain.Message{}, fmt.Errorf("disk full"))

	_, err := f.service.Send(context.Background(), alice, roomID, "hi")

	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(listener.Events())
}

func TestChatService_Send_Rejects_Invalid_Content(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	f.messages.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.Send(context.Background(), alice, "dm_1_2", "")
	req.ErrorIs(err, errors.ErrEmptyContent)

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'é'
	}
	_, err = f.service.Send(context.Background(), alice, "dm_1_2", string(long))
	req.ErrorIs(err, errors.ErrContentTooLong)
}

func TestChatService_Send_Outlives_Caller(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := domain.RoomID("dm_1_2")
	listener := sink.NewConnectionSink(4)
	f.registry.Subscribe(roomID, listener)

	// Given a caller whose connection is already gone
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.messages.EXPECT().AppendMessage(gomock.Any(), roomID, alice.UserID, "bye").
		DoAndReturn(func(ctx context.Context, roomID domain.RoomID, sender domain.UserID, content string) (domain.Message, error) {
			if ctx.Err() != nil {
				return domain.Message{}, ctx.Err()
			}
			return stored(roomID, 1, sender, content), nil
		})

	// Then the message is still stored and published
	_, err := f.service.Send(ctx, alice, roomID, "bye")
	req.NoError(err)
	req.Len(listener.Events(), 1)
}

func TestChatService_Join_Is_Fail_Closed(t *testing.T) {
	ctx := context.Background()
	roomID := domain.RoomID("assignment_9")

	t.Run("should reject non members", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t, nil)
		f.rooms.EXPECT().IsMember(gomock.Any(), alice.UserID, roomID).Return(false, nil)

		err := f.service.Join(ctx, alice, roomID, sink.NewConnectionSink(1))

		req.ErrorIs(err, errors.ErrNotMember)
		req.Zero(f.registry.Subscribers(roomID))
	})

	t.Run("should reject when the store fails", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t, nil)
		f.rooms.EXPECT().IsMember(gomock.Any(), alice.UserID, roomID).Return(false, fmt.Errorf("badger closed"))

		err := f.service.Join(ctx, alice, roomID, sink.NewConnectionSink(1))

		req.ErrorIs(err, errors.ErrNotMember)
		req.Zero(f.registry.Subscribers(roomID))
	})

	t.Run("should reject anonymous without asking the store", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t, nil)
		f.rooms.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		err := f.service.Join(ctx, domain.Anonymous, roomID, sink.NewConnectionSink(1))

		req.ErrorIs(err, errors.ErrUnauthenticated)
	})
}

func TestChatService_Delivery_Order_Matches_Storage_Order(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := domain.RoomID("general")
	a, b := sink.NewConnectionSink(512), sink.NewConnectionSink(512)
	f.registry.Subscribe(roomID, a)
	f.registry.Subscribe(roomID, b)

	var next atomic.Uint64
	f.messages.EXPECT().AppendMessage(gomock.Any(), roomID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, roomID domain.RoomID, sender domain.UserID, content string) (domain.Message, error) {
			return stored(roomID, domain.MessageID(next.Add(1)), sender, content), nil
		}).
		Times(200)

	// When four connections send concurrently
	var wg sync.WaitGroup
	for _, sender := range []domain.Identity{alice, bob, alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := f.service.Send(context.Background(), sender, roomID, "ping")
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	// Then every subscriber receives ids in increasing order
	for _, s := range []*sink.ConnectionSink{a, b} {
		req.Len(s.Events(), 200)
		for i := 1; i <= 200; i++ {
			e := <-s.Events()
			req.Equal(domain.MessageID(i), e.(event.MessagePosted).MessageID)
		}
	}
}

func TestChatService_Send_Censors_Content(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)
	f := newChatFixture(t, moderator)

	f.messages.EXPECT().AppendMessage(gomock.Any(), domain.RoomID("dm_1_2"), alice.UserID, "a ****** here").
		Return(stored("dm_1_2", 1, alice.UserID, "a ****** here"), nil)

	message, err := f.service.Send(context.Background(), alice, "dm_1_2", "a badger here")
	req.NoError(err)
	req.Equal("a ****** here", message.Content)
}

func TestChatService_PostMessage_Checks_Membership(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	f.rooms.EXPECT().IsMember(gomock.Any(), bob.UserID, domain.RoomID("dm_1_3")).Return(false, nil)
	f.messages.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.PostMessage(context.Background(), bob, "dm_1_3", "let me in")

	req.ErrorIs(err, errors.ErrNotMember)
}

func TestChatService_ListRooms(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()
	dm := domain.Room{ID: "dm_1_2", Members: []domain.UserID{1, 2}, IsDirect: true}
	empty := domain.Room{ID: "assignment_4", Members: []domain.UserID{1, 3}}
	last := stored(dm.ID, 7, bob.UserID, "see you")

	f.rooms.EXPECT().ListRoomsForUser(ctx, alice.UserID).Return([]domain.Room{dm, empty}, nil)
	f.messages.EXPECT().LastMessage(ctx, dm.ID).Return(&last, nil)
	f.messages.EXPECT().LastMessage(ctx, empty.ID).Return(nil, nil)
	f.users.EXPECT().GetUserByID(ctx, alice.UserID).Return(domain.User{ID: 1, Username: "alice"}, nil)
	f.users.EXPECT().GetUserByID(ctx, bob.UserID).Return(domain.User{ID: 2, Username: "bob"}, nil)
	f.users.EXPECT().GetUserByID(ctx, domain.UserID(3)).Return(domain.User{}, errors.ErrUserNotFound)

	summaries, err := f.service.ListRooms(ctx, alice.UserID)
	req.NoError(err)

	req.Len(summaries, 2)
	req.NotNil(summaries[0].LastMessage)
	req.Equal("bob", summaries[0].LastMessage.Sender.Username)
	req.Nil(summaries[1].LastMessage)
	// A deleted user keeps its id
	req.Equal(domain.UserID(3), summaries[1].Participants[1].UserID)
}

func TestChatService_GetRoomDetail(t *testing.T) {
	ctx := context.Background()
	dm := domain.Room{ID: "dm_1_2", Members: []domain.UserID{1, 2}, IsDirect: true}

	t.Run("should deny non members", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t, nil)
		f.rooms.EXPECT().GetRoom(ctx, dm.ID).Return(dm, nil)

		_, err := f.service.GetRoomDetail(ctx, 3, dm.ID)
		req.ErrorIs(err, errors.ErrNotMember)
	})

	t.Run("should return the latest messages", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t, nil)
		messages := []domain.Message{stored(dm.ID, 2, 2, "second"), stored(dm.ID, 1, 1, "first")}
		f.rooms.EXPECT().GetRoom(ctx, dm.ID).Return(dm, nil)
		f.messages.EXPECT().LastMessage(ctx, dm.ID).Return(&messages[0], nil)
		f.messages.EXPECT().GetMessages(ctx, dm.ID, nil, roomDetailMessages).
			Return(domain.MessagePage{Messages: messages}, nil)
		f.users.EXPECT().GetUserByID(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, id domain.UserID) (domain.User, error) {
				return domain.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
			}).
			Times(2)

		detail, err := f.service.GetRoomDetail(ctx, 1, dm.ID)
		req.NoError(err)
		req.Len(detail.Messages, 2)
		req.Equal("second", detail.Messages[0].Content)
		req.Equal("user1", detail.Messages[1].Sender.Username)
	})
}

func TestChatService_CreateDirectRoom(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()
	dm := domain.Room{ID: "dm_1_2", Members: []domain.UserID{1, 2}, IsDirect: true}

	f.users.EXPECT().GetUserByID(ctx, bob.UserID).Return(domain.User{ID: 2, Username: "bob"}, nil).Times(2)
	f.users.EXPECT().GetUserByID(ctx, alice.UserID).Return(domain.User{ID: 1, Username: "alice"}, nil)
	f.rooms.EXPECT().GetOrCreateDirectRoom(ctx, alice.UserID, bob.UserID).Return(dm, true, nil)
	f.messages.EXPECT().LastMessage(ctx, dm.ID).Return(nil, nil)

	summary, created, err := f.service.CreateDirectRoom(ctx, alice.UserID, bob.UserID)
	req.NoError(err)
	req.True(created)
	req.Len(summary.Participants, 2)

	// An unknown recipient never reaches the room store
	f.users.EXPECT().GetUserByID(ctx, domain.UserID(99)).Return(domain.User{}, errors.ErrUserNotFound)
	_, _, err = f.service.CreateDirectRoom(ctx, alice.UserID, 99)
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestChatService_CreateAssignmentRoom_Existing_Room_Is_Closed_To_Outsiders(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()
	assignment := int64(9)
	room := domain.Room{ID: "assignment_9", Members: []domain.UserID{1, 2}, AssignmentID: &assignment}
	carol := domain.UserID(3)

	// Given an existing room that carol is not part of
	f.rooms.EXPECT().GetOrCreateAssignmentRoom(ctx, assignment, []domain.UserID{carol}).Return(room, false, nil)
	f.rooms.EXPECT().IsMember(ctx, carol, room.ID).Return(false, nil)

	// When carol asks for it, then she is refused and nobody is added
	_, _, err := f.service.CreateAssignmentRoom(ctx, carol, assignment, nil)
	req.ErrorIs(err, errors.ErrNotMember)
}

func TestChatService_CreateAssignmentRoom_Member_Adds_Newcomers(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()
	assignment := int64(9)
	room := domain.Room{ID: "assignment_9", Members: []domain.UserID{1, 2}, AssignmentID: &assignment}
	grown := domain.Room{ID: "assignment_9", Members: []domain.UserID{1, 2, 3}, AssignmentID: &assignment}

	// Given alice, a member, bringing in bob who is already there and a newcomer
	f.users.EXPECT().GetUserByID(ctx, domain.UserID(2)).Return(domain.User{ID: 2, Username: "bob"}, nil)
	f.users.EXPECT().GetUserByID(ctx, domain.UserID(3)).Return(domain.User{ID: 3, Username: "carol"}, nil)
	f.users.EXPECT().GetUserByID(ctx, alice.UserID).Return(domain.User{ID: 1, Username: "alice"}, nil)
	f.rooms.EXPECT().GetOrCreateAssignmentRoom(ctx, assignment, []domain.UserID{1, 2, 3}).Return(room, false, nil)
	f.rooms.EXPECT().IsMember(ctx, alice.UserID, room.ID).Return(true, nil)
	f.rooms.EXPECT().AddMembers(ctx, room.ID, domain.UserID(3)).Return(nil)
	f.rooms.EXPECT().GetRoom(ctx, room.ID).Return(grown, nil)
	f.messages.EXPECT().LastMessage(ctx, room.ID).Return(nil, nil)

	// When alice asks for the room
	summary, created, err := f.service.CreateAssignmentRoom(ctx, alice.UserID, assignment, []domain.UserID{2, 3})

	// Then only the newcomer is added
	req.NoError(err)
	req.False(created)
	req.Len(summary.Participants, 3)
}
