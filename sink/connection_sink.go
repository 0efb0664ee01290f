package sink

import (
	"context"
	"final-draft/domain/event"
	"final-draft/errors"
	"sync"
)

// ConnectionSink is the queue between the broadcaster and one connection writer.
// Consume never blocks: a full queue is reported as ErrSinkOverflow.
type ConnectionSink struct {
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ConnectionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case s.events <- e:
		return nil
	default:
		return errors.ErrSinkOverflow
	}
}

// Close is idempotent. Queued events are abandoned.
func (s *ConnectionSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}
