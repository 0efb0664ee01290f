//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"context"
	stdErrors "errors"
	"final-draft/domain"
	"final-draft/errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type ISessionRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, key string) (domain.Session, error)
	DeleteSession(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type SessionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSessionRepository(db *badger.DB, log *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, log: log}
}

// CreateSession stores the session with a badger TTL matching its expiry,
// so an abandoned session eventually disappears even without the janitor.
func (s *SessionRepository) CreateSession(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.ErrSessionExpired
	}
	entry := badger.NewEntry(sessionKey(session.Key), encodeSession(session)).WithTTL(ttl)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

func (s *SessionRepository) GetSession(ctx context.Context, key string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	var session domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			session, err = decodeSession(val)
			return err
		})
	})
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	session.Key = key
	if session.Expired(time.Now()) {
		return domain.Session{}, errors.ErrSessionExpired
	}
	return session, nil
}

// DeleteSession is idempotent.
func (s *SessionRepository) DeleteSession(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(key))
	})
}

// PurgeExpired deletes every session whose expiry is not after now.
func (s *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(sessionPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				session, err := decodeSession(val)
				if err != nil {
					return err
				}
				if session.Expired(now) {
					expired = append(expired, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err = wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err = wb.Flush(); err != nil {
		return 0, err
	}
	s.log.Debug("Expired sessions purged", "count", len(expired))
	return len(expired), nil
}

func encodeSession(session domain.Session) []byte {
	w := &wireWriter{}
	return w.signed(1, int64(session.UserID)).
		time(2, session.ExpiresAt).
		bytes()
}

func decodeSession(b []byte) (domain.Session, error) {
	var session domain.Session
	err := consumeFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			session.UserID = domain.UserID(f.signed())
		case 2:
			session.ExpiresAt = f.time()
		}
		return nil
	})
	return session, err
}
