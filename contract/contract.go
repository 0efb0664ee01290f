//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"final-draft/domain"
	"final-draft/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the receiving end of one subscription.
// Consume must not block: a sink that can't keep up returns an error.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close() error
}

// IRegistry is the group broadcaster: room key to the set of live sinks.
type IRegistry interface {
	Subscribe(roomID domain.RoomID, sink EventSink)
	Unsubscribe(roomID domain.RoomID, sink EventSink)
	Publish(ctx context.Context, roomID domain.RoomID, e event.DomainEvent)
	Subscribers(roomID domain.RoomID) int
}

// IdentityResolver never fails, unresolvable credentials map to domain.Anonymous.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) domain.Identity
}

// IMembershipOracle answers whether a user may join a room. A missing room is (false, nil).
type IMembershipOracle interface {
	IsMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error)
}
