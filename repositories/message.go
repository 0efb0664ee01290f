//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	stdErrors "errors"
	"final-draft/domain"
	"final-draft/errors"
	"final-draft/runtime"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultPageSize = 50

type IMessageRepository interface {
	AppendMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, content string) (domain.Message, error)
	GetMessages(ctx context.Context, roomID domain.RoomID, before *domain.MessageID, limit int) (domain.MessagePage, error)
	LastMessage(ctx context.Context, roomID domain.RoomID) (*domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	now           func() time.Time
	locks         runtime.RoomLocks
}

// NewMessageRepository caps every page at limitMessages when it is set.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages, now: time.Now}
}

// AppendMessage persists a message at the end of the room log.
// The key is formatted as "msg:{room_id}:{id_padded}" so a prefix scan
// returns the log in append order. Ids start at 1 and timestamps never
// go backwards within a room, even if the wall clock does.
func (m *MessageRepository) AppendMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	unlock := m.locks.Lock(roomID)
	defer unlock()

	var message domain.Message
	err := updateWithRetry(m.db, func(txn *badger.Txn) error {
		if _, err := getRoom(txn, roomID); err != nil {
			return err
		}
		lastID, lastAt, err := getMessageSequence(txn, roomID)
		if err != nil {
			return err
		}
		at := m.now().UTC()
		if at.Before(lastAt) {
			at = lastAt
		}
		message = domain.Message{
			ID:        lastID + 1,
			RoomID:    roomID,
			SenderID:  senderID,
			Content:   content,
			CreatedAt: at,
		}
		if err = txn.Set(messageKey(roomID, message.ID), encodeMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageSequenceKey(roomID), encodeMessageSequence(message.ID, at))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message to %s: %w", roomID, err)
	}
	return message, nil
}

// GetMessages walks the room log backwards from the cursor.
// before is exclusive; a nil cursor starts from the newest message.
// NextCursor is set only when older messages remain.
func (m *MessageRepository) GetMessages(ctx context.Context, roomID domain.RoomID, before *domain.MessageID, limit int) (domain.MessagePage, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessagePage{}, err
	}
	limit = m.pageSize(limit)
	if before != nil && *before == 0 {
		return domain.MessagePage{}, errors.ErrInvalidCursor
	}

	var page domain.MessagePage
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := getRoom(txn, roomID); err != nil {
			return err
		}
		prefix := messageRoomPrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch before {
		case nil:
			seekKey = append(prefix, 0xFF)
		default:
			seekKey = messageKey(roomID, *before-1)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(page.Messages) == limit {
				oldest := page.Messages[len(page.Messages)-1].ID
				page.NextCursor = &oldest
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				message, err = decodeMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			message.RoomID = roomID
			page.Messages = append(page.Messages, message)
		}
		return nil
	})
	if err != nil {
		return domain.MessagePage{}, err
	}
	return page, nil
}

func (m *MessageRepository) LastMessage(ctx context.Context, roomID domain.RoomID) (*domain.Message, error) {
	page, err := m.GetMessages(ctx, roomID, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(page.Messages) == 0 {
		return nil, nil
	}
	return &page.Messages[0], nil
}

func (m *MessageRepository) pageSize(limit int) int {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if m.limitMessages != nil && *m.limitMessages > 0 && limit > *m.limitMessages {
		limit = *m.limitMessages
	}
	return limit
}

func getMessageSequence(txn *badger.Txn, roomID domain.RoomID) (domain.MessageID, time.Time, error) {
	item, err := txn.Get(messageSequenceKey(roomID))
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	var lastID domain.MessageID
	var lastAt time.Time
	err = item.Value(func(val []byte) error {
		lastID, lastAt, err = decodeMessageSequence(val)
		return err
	})
	return lastID, lastAt, err
}

func decodeMessageSequence(b []byte) (lastID domain.MessageID, lastAt time.Time, err error) {
	err = consumeFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			lastID = domain.MessageID(f.varint)
		case 2:
			lastAt = f.time()
		}
		return nil
	})
	return lastID, lastAt, err
}

func encodeMessageSequence(lastID domain.MessageID, lastAt time.Time) []byte {
	w := &wireWriter{}
	return w.varint(1, uint64(lastID)).time(2, lastAt).bytes()
}

func encodeMessage(message domain.Message) []byte {
	w := &wireWriter{}
	return w.varint(1, uint64(message.ID)).
		signed(3, int64(message.SenderID)).
		string(4, message.Content).
		time(5, message.CreatedAt).
		bytes()
}

func decodeMessage(b []byte) (domain.Message, error) {
	var message domain.Message
	err := consumeFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			message.ID = domain.MessageID(f.varint)
		case 3:
			message.SenderID = domain.UserID(f.signed())
		case 4:
			message.Content = f.string()
		case 5:
			message.CreatedAt = f.time()
		}
		return nil
	})
	return message, err
}
