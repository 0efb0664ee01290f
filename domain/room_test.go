package domain

import (
	"final-draft/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectRoomID_IsOrderIndependent(t *testing.T) {
	req := require.New(t)

	// Given two users
	// When the room key is derived from both sides
	ab, err := DirectRoomID(1, 2)
	req.NoError(err)
	ba, err := DirectRoomID(2, 1)
	req.NoError(err)

	// Then both sides resolve to the same room
	req.Equal(RoomID("dm_1_2"), ab)
	req.Equal(ab, ba)
}

func TestDirectRoomID_RejectsSelfChat(t *testing.T) {
	req := require.New(t)

	_, err := DirectRoomID(7, 7)
	req.ErrorIs(err, errors.ErrSameUserDirectRoom)
}

func TestAssignmentRoomID(t *testing.T) {
	req := require.New(t)
	req.Equal(RoomID("assignment_9"), AssignmentRoomID(9))
}

func TestRoomID_Validate(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		id      RoomID
		wantErr bool
	}{
		{"Direct room", "dm_1_2", false},
		{"Assignment room", "assignment_9", false},
		{"Free form", "general", false},
		{"Empty", "", true},
		{"Key separator", "dm:1", true},
		{"Path separator", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidRoomID)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestRoom_HasMember(t *testing.T) {
	req := require.New(t)
	room := Room{ID: "dm_1_2", Members: []UserID{1, 2}, IsDirect: true, CreatedAt: time.Now()}

	req.True(room.HasMember(2))
	req.False(room.HasMember(3))
}

func TestSession_Expired(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	session := Session{Key: "k", UserID: 1, ExpiresAt: now.Add(time.Minute)}

	req.False(session.Expired(now))
	req.True(session.Expired(now.Add(time.Minute)))
}

func TestIdentity_IsAnonymous(t *testing.T) {
	req := require.New(t)
	req.True(Anonymous.IsAnonymous())
	req.False(User{ID: 3, Username: "ada"}.Identity().IsAnonymous())
}
