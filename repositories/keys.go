package repositories

import (
	"final-draft/domain"
	"fmt"
)

// Numeric key parts are zero padded to 20 digits so lexicographic order is numeric order.
const (
	userSequenceKey = "seq:user"
	userPrefix      = "user:id:"
	sessionPrefix   = "session:"
	roomPrefix      = "room:"
	memberPrefix    = "member:"
	userRoomPrefix  = "idx:user-room:"
	messagePrefix   = "msg:"
	messageSeqKey   = "msgseq:"
)

func userKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%020d", userPrefix, id))
}

func userEmailKey(email string) []byte {
	return []byte("user:email:" + email)
}

func userNameKey(username string) []byte {
	return []byte("user:username:" + username)
}

func sessionKey(key string) []byte {
	return []byte(sessionPrefix + key)
}

func roomKey(roomID domain.RoomID) []byte {
	return []byte(roomPrefix + string(roomID))
}

func memberKey(roomID domain.RoomID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", memberPrefix, roomID, userID))
}

func userRoomPrefixKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%020d:", userRoomPrefix, userID))
}

func userRoomKey(userID domain.UserID, roomID domain.RoomID) []byte {
	return append(userRoomPrefixKey(userID), []byte(roomID)...)
}

func messageRoomPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagePrefix, roomID))
}

func messageKey(roomID domain.RoomID, id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messagePrefix, roomID, id))
}

func messageSequenceKey(roomID domain.RoomID) []byte {
	return []byte(messageSeqKey + string(roomID))
}
