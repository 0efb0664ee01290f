//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/binary"
	stdErrors "errors"
	"final-draft/domain"
	"final-draft/errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error)
}

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewUserRepository leases user ids from a badger sequence.
// Release must be called before the database is closed.
func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte(userSequenceKey), 100)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &UserRepository{db: db, seq: seq}, nil
}

func (u *UserRepository) Release() error {
	return u.seq.Release()
}

// CreateUser assigns the next id and persists the user along with its
// email and username indexes. Both must be unique.
func (u *UserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	next, err := u.seq.Next()
	if err != nil {
		return domain.User{}, fmt.Errorf("next user id: %w", err)
	}
	// Sequences start at zero and zero is the anonymous user
	user.ID = domain.UserID(next + 1)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{userEmailKey(user.Email), userNameKey(user.Username)} {
			if _, err := txn.Get(key); err == nil {
				return errors.ErrUserAlreadyExists
			} else if !stdErrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(key, encodeUserID(user.ID)); err != nil {
				return err
			}
		}
		return txn.Set(userKey(user.ID), encodeUser(user))
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		var id domain.UserID
		if err = item.Value(func(val []byte) error {
			id, err = decodeUserID(val)
			return err
		}); err != nil {
			return err
		}
		user, err = getUser(txn, id)
		return err
	})
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, err
}

func (u *UserRepository) GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, err
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err = item.Value(func(val []byte) error {
		user, err = decodeUser(val)
		return err
	})
	return user, err
}

func encodeUserID(id domain.UserID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func decodeUserID(b []byte) (domain.UserID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid user id length %d", len(b))
	}
	return domain.UserID(binary.BigEndian.Uint64(b)), nil
}

func encodeUser(user domain.User) []byte {
	w := &wireWriter{}
	return w.signed(1, int64(user.ID)).
		string(2, user.Username).
		string(3, user.Email).
		string(4, user.FirstName).
		string(5, user.LastName).
		string(6, user.PasswordHash).
		time(7, user.CreatedAt).
		bytes()
}

func decodeUser(b []byte) (domain.User, error) {
	var user domain.User
	err := consumeFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			user.ID = domain.UserID(f.signed())
		case 2:
			user.Username = f.string()
		case 3:
			user.Email = f.string()
		case 4:
			user.FirstName = f.string()
		case 5:
			user.LastName = f.string()
		case 6:
			user.PasswordHash = f.string()
		case 7:
			user.CreatedAt = f.time()
		}
		return nil
	})
	return user, err
}
