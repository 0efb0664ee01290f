package domain

import (
	"final-draft/errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	directRoomPrefix     = "dm"
	assignmentRoomPrefix = "assignment"
)

// RoomID is the opaque key of a room, also used as the broadcast group key.
type RoomID string

type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// Validate rejects identifiers that would break the store key layout.
func (r RoomID) Validate() error {
	if r == "" || strings.ContainsAny(string(r), ": /") {
		return errors.ErrInvalidRoomID
	}
	return nil
}

type Room struct {
	ID           RoomID
	Members      []UserID
	AssignmentID *int64
	IsDirect     bool
	CreatedAt    time.Time
}

// DirectRoomID derives the room key of a one-to-one conversation.
// The pair is sorted so both users resolve to the same room.
func DirectRoomID(a, b UserID) (RoomID, error) {
	if a == b {
		return "", errors.ErrSameUserDirectRoom
	}
	low, high := min(a, b), max(a, b)
	return RoomID(fmt.Sprintf("%s_%d_%d", directRoomPrefix, low, high)), nil
}

func AssignmentRoomID(assignmentID int64) RoomID {
	return RoomID(fmt.Sprintf("%s_%d", assignmentRoomPrefix, assignmentID))
}

func (r Room) HasMember(userID UserID) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}
