package sink

import (
	"context"
	"final-draft/domain/event"
	"final-draft/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Queues_Until_Full(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(2)

	req.NoError(s.Consume(ctx, event.MessagePosted{Room: "general", MessageID: 1}))
	req.NoError(s.Consume(ctx, event.MessagePosted{Room: "general", MessageID: 2}))

	// When the queue is full
	err := s.Consume(ctx, event.MessagePosted{Room: "general", MessageID: 3})

	// Then the sink refuses without blocking
	req.ErrorIs(err, errors.ErrSinkOverflow)
	first := <-s.Events()
	req.Equal(event.MessagePosted{Room: "general", MessageID: 1}, first)
}

func TestConnectionSink_Close(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(4)

	req.NoError(s.Close())
	req.NoError(s.Close())

	_, open := <-s.Done()
	req.False(open)
	req.ErrorIs(s.Consume(context.Background(), event.MessagePosted{Room: "general"}), errors.ErrSinkClosed)
}

func TestConnectionSink_Canceled_Context(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewConnectionSink(4).Consume(ctx, event.MessagePosted{Room: "general"})
	req.ErrorIs(err, context.Canceled)
}
