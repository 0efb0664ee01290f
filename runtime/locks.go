package runtime

import (
	"final-draft/domain"
	"sync"
)

// RoomLocks hands out one mutex per room. Entries are never released,
// rooms are long lived and a mutex is a few bytes.
type RoomLocks struct {
	locks sync.Map // domain.RoomID -> *sync.Mutex
}

// Lock blocks until the room is free and returns the matching unlock.
func (l *RoomLocks) Lock(roomID domain.RoomID) func() {
	v, _ := l.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
