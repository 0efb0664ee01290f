package ws

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"final-draft/domain"
	"final-draft/domain/event"
	"final-draft/errors"
	"final-draft/observability"
	"final-draft/sink"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type State int32

const (
	Connecting State = iota
	Joined
	Rejected
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Rejected:
		return "rejected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Application close codes, in the 4000-4999 private range.
const (
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
)

// inboundFrame is what a client sends. Anything that doesn't decode to a non-empty message is dropped.
type inboundFrame struct {
	Message string `json:"message"`
}

// Session is one WebSocket connection joined to one room.
// It owns a reader goroutine feeding the chat service and a writer
// goroutine draining its sink into the connection.
type Session struct {
	conn     *websocket.Conn
	identity domain.Identity
	roomID   domain.RoomID
	chat     Chat
	sink     *sink.ConnectionSink
	config   Config
	metrics  *observability.Metrics
	log      *slog.Logger
	state    atomic.Int32
	stopping atomic.Bool
	stopOnce sync.Once
}

// newSession starts in Connecting, before the peer is identified.
func newSession(conn *websocket.Conn, roomID domain.RoomID, chat Chat, config Config,
	metrics *observability.Metrics, log *slog.Logger) *Session {
	return &Session{
		conn:     conn,
		identity: domain.Anonymous,
		roomID:   roomID,
		chat:     chat,
		sink:     sink.NewConnectionSink(config.BufferSize),
		config:   config,
		metrics:  metrics,
		log:      log.With("room_id", roomID),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) identify(identity domain.Identity) {
	s.identity = identity
	s.log = s.log.With("user_id", identity.UserID)
}

// reject closes the connection with an application close code and no other frame.
func (s *Session) reject(code int, reason string) {
	s.state.Store(int32(Rejected))
	deadline := time.Now().Add(s.config.WriteTimeout)
	if err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		s.log.Debug("Close frame not sent", "error", err)
	}
	_ = s.conn.Close()
}

// run blocks until the connection ends. The caller has already subscribed s.sink.
func (s *Session) run(ctx context.Context) {
	s.state.Store(int32(Joined))
	s.metrics.ConnectionJoined()
	s.log.Info("Connection joined")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	s.readLoop(ctx)

	s.stop()
	<-writerDone
	s.state.Store(int32(Closed))
	s.metrics.ConnectionLeft()
	s.log.Info("Connection closed")
}

// stop unsubscribes before the sink is closed so the broadcaster never sees a dead sink.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.chat.Leave(s.roomID, s.sink)
		_ = s.sink.Close()
	})
}

func (s *Session) readLoop(ctx context.Context) {
	if s.config.MaxFrameBytes > 0 {
		s.conn.SetReadLimit(s.config.MaxFrameBytes)
	}
	if readTimeout := s.config.readTimeout(); readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Connection read failed", "error", err)
			}
			return
		}
		if readTimeout := s.config.readTimeout(); readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err = json.Unmarshal(data, &frame); err != nil || frame.Message == "" {
			continue
		}
		s.receive(ctx, frame.Message)
	}
}

func (s *Session) receive(ctx context.Context, content string) {
	_, err := s.chat.Send(ctx, s.identity, s.roomID, content)
	switch {
	case err == nil:
	case stdErrors.Is(err, errors.ErrPersistence):
		// Only the sender learns about it, through its own queue
		rejected := event.MessageRejected{Room: s.roomID, Reason: errors.ErrPersistence.Error()}
		if err = s.sink.Consume(ctx, rejected); err != nil {
			s.log.Debug("Rejection not queued", "error", err)
		}
	default:
		s.log.Debug("Message dropped", "error", err)
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	// Closing the connection unblocks the reader once writing is no longer possible
	defer s.conn.Close()

	var ping <-chan time.Time
	if s.config.PingInterval > 0 {
		ticker := time.NewTicker(s.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case e := <-s.sink.Events():
			if err := s.write(e); err != nil {
				s.log.Debug("Connection write failed", "error", err)
				return
			}
		case <-ping:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("Ping failed", "error", err)
				return
			}
		case <-s.sink.Done():
			s.closeFrame()
			return
		case <-ctx.Done():
			s.stopping.Store(true)
			s.closeFrame()
			return
		}
	}
}

func (s *Session) write(e event.DomainEvent) error {
	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	return s.conn.WriteJSON(e)
}

// closeFrame tells the peer why the server is ending the connection.
// It fails silently when the peer is already gone.
func (s *Session) closeFrame() {
	code, reason := websocket.CloseGoingAway, "server shutting down"
	// The sink was closed by someone else: the broadcaster evicted us
	if !s.stopping.Load() {
		code, reason = websocket.CloseTryAgainLater, "too slow"
	}
	deadline := time.Now().Add(s.config.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
