//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"context"
	stdErrors "errors"
	"final-draft/contract"
	"final-draft/domain"
	"final-draft/errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IRoomRepository interface {
	contract.IMembershipOracle
	GetOrCreateDirectRoom(ctx context.Context, a, b domain.UserID) (domain.Room, bool, error)
	GetOrCreateAssignmentRoom(ctx context.Context, assignmentID int64, members []domain.UserID) (domain.Room, bool, error)
	CreateRoom(ctx context.Context, room domain.Room) (domain.Room, bool, error)
	AddMembers(ctx context.Context, roomID domain.RoomID, members ...domain.UserID) error
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	ListRoomsForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
}

// RoomRepository owns the durable membership relation.
// Every member has a "member:<room>:<user>" key for the join check
// and a reverse "idx:user-room:<user>:<room>" key for listing.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

// GetOrCreateDirectRoom returns the one-to-one room of a and b,
// creating it on first use. The boolean reports a creation.
func (r *RoomRepository) GetOrCreateDirectRoom(ctx context.Context, a, b domain.UserID) (domain.Room, bool, error) {
	roomID, err := domain.DirectRoomID(a, b)
	if err != nil {
		return domain.Room{}, false, err
	}
	return r.CreateRoom(ctx, domain.Room{
		ID:       roomID,
		Members:  []domain.UserID{min(a, b), max(a, b)},
		IsDirect: true,
	})
}

// GetOrCreateAssignmentRoom returns the room of an assignment, creating it with
// members on first use. An existing room is returned untouched.
func (r *RoomRepository) GetOrCreateAssignmentRoom(ctx context.Context, assignmentID int64, members []domain.UserID) (domain.Room, bool, error) {
	return r.CreateRoom(ctx, domain.Room{
		ID:           domain.AssignmentRoomID(assignmentID),
		Members:      members,
		AssignmentID: &assignmentID,
	})
}

// CreateRoom persists room unless a room with the same id exists,
// in which case the stored room is returned untouched.
func (r *RoomRepository) CreateRoom(ctx context.Context, room domain.Room) (domain.Room, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, false, err
	}
	if err := room.ID.Validate(); err != nil {
		return domain.Room{}, false, err
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.Members = uniqueMembers(nil, room.Members)

	var stored domain.Room
	created := false
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		existing, err := getRoom(txn, room.ID)
		if err == nil {
			stored = existing
			created = false
			return nil
		}
		if !stdErrors.Is(err, errors.ErrRoomNotFound) {
			return err
		}
		if err = putRoom(txn, room, room.Members); err != nil {
			return err
		}
		stored = room
		created = true
		return nil
	})
	if err != nil {
		return domain.Room{}, false, err
	}
	if created {
		r.log.Debug("Room created", "room_id", room.ID, "members", len(room.Members))
	}
	return stored, created, nil
}

// AddMembers appends users to the room, keeping insertion order and ignoring existing members.
func (r *RoomRepository) AddMembers(ctx context.Context, roomID domain.RoomID, members ...domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return updateWithRetry(r.db, func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if err != nil {
			return err
		}
		merged := uniqueMembers(room.Members, members)
		if len(merged) == len(room.Members) {
			return nil
		}
		added := merged[len(room.Members):]
		room.Members = merged
		return putRoom(txn, room, added)
	})
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	return room, err
}

// IsMember reads the membership relation on every call. A missing room is not an error.
func (r *RoomRepository) IsMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if roomID.Validate() != nil || userID == 0 {
		return false, nil
	}
	member := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(roomID, userID))
		switch {
		case err == nil:
			member = true
			return nil
		case stdErrors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return member, err
}

// ListRoomsForUser returns the rooms of userID, most recently created first.
func (r *RoomRepository) ListRoomsForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := userRoomPrefixKey(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.RoomID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.RoomID(it.Item().Key()[len(prefix):]))
		}
		for _, id := range ids {
			room, err := getRoom(txn, id)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rooms, func(a, b domain.Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return rooms, nil
}

func getRoom(txn *badger.Txn, roomID domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(roomID))
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err = item.Value(func(val []byte) error {
		room, err = decodeRoom(val)
		return err
	})
	return room, err
}

func putRoom(txn *badger.Txn, room domain.Room, added []domain.UserID) error {
	if err := txn.Set(roomKey(room.ID), encodeRoom(room)); err != nil {
		return err
	}
	for _, userID := range added {
		if err := txn.Set(memberKey(room.ID, userID), nil); err != nil {
			return err
		}
		if err := txn.Set(userRoomKey(userID, room.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func uniqueMembers(existing, added []domain.UserID) []domain.UserID {
	merged := slices.Clone(existing)
	for _, userID := range added {
		if userID == 0 || slices.Contains(merged, userID) {
			continue
		}
		merged = append(merged, userID)
	}
	return merged
}

// updateWithRetry re-runs fn when badger reports a write conflict.
func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	const attempts = 5
	var err error
	for range attempts {
		err = db.Update(fn)
		if !stdErrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func encodeRoom(room domain.Room) []byte {
	w := &wireWriter{}
	w.string(1, string(room.ID)).
		boolean(3, room.IsDirect).
		time(4, room.CreatedAt)
	if room.AssignmentID != nil {
		w.signed(2, *room.AssignmentID)
	}
	for _, m := range room.Members {
		w.signed(5, int64(m))
	}
	return w.bytes()
}

func decodeRoom(b []byte) (domain.Room, error) {
	var room domain.Room
	err := consumeFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			room.ID = domain.RoomID(f.string())
		case 2:
			id := f.signed()
			room.AssignmentID = &id
		case 3:
			room.IsDirect = f.boolean()
		case 4:
			room.CreatedAt = f.time()
		case 5:
			room.Members = append(room.Members, domain.UserID(f.signed()))
		}
		return nil
	})
	return room, err
}
