package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Record is a human readable view of one stored key, for the inspect tool.
type Record struct {
	Key     string
	Kind    string
	At      time.Time
	Owner   string
	Summary string
}

// Inspect walks every key starting with prefix and describes it.
// Password hashes are never part of a description.
func Inspect(db *badger.DB, prefix string, visit func(Record) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := describe(key, value)
			if err != nil {
				record = Record{Key: string(key), Kind: "corrupt", Summary: err.Error()}
			}
			if err = visit(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func describe(key, value []byte) (Record, error) {
	record := Record{Key: string(key)}
	switch k := string(key); {
	case k == userSequenceKey:
		record.Kind = "sequence"
		record.Summary = fmt.Sprintf("lease %d bytes", len(value))
	case strings.HasPrefix(k, userPrefix):
		user, err := decodeUser(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.At, record.Owner = "user", user.CreatedAt, user.ID.String()
		record.Summary = fmt.Sprintf("%s <%s>", user.Username, user.Email)
	case strings.HasPrefix(k, "user:"):
		id, err := decodeUserID(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.Owner = "index", id.String()
	case strings.HasPrefix(k, sessionPrefix):
		session, err := decodeSession(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.At, record.Owner = "session", session.ExpiresAt, session.UserID.String()
		record.Summary = "expires"
	case strings.HasPrefix(k, roomPrefix):
		room, err := decodeRoom(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.At = "room", room.CreatedAt
		record.Summary = fmt.Sprintf("direct=%t members=%v", room.IsDirect, room.Members)
	case strings.HasPrefix(k, memberPrefix), strings.HasPrefix(k, userRoomPrefix):
		record.Kind = "index"
	case strings.HasPrefix(k, messageSeqKey):
		lastID, lastAt, err := decodeMessageSequence(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.At = "sequence", lastAt
		record.Summary = fmt.Sprintf("last message %d", lastID)
	case strings.HasPrefix(k, messagePrefix):
		message, err := decodeMessage(value)
		if err != nil {
			return record, err
		}
		record.Kind, record.At, record.Owner = "message", message.CreatedAt, message.SenderID.String()
		record.Summary = message.Content
	default:
		record.Kind = "unknown"
		record.Summary = fmt.Sprintf("%d bytes", len(value))
	}
	return record, nil
}
