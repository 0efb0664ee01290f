package ws

import (
	"context"
	stdErrors "errors"
	"final-draft/auth"
	"final-draft/contract"
	"final-draft/domain"
	"final-draft/errors"
	"final-draft/observability"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// RoomVar is the mux variable holding the room id in the upgrade path.
const RoomVar = "room_id"

// Chat is the part of the chat service a connection needs.
type Chat interface {
	Join(ctx context.Context, identity domain.Identity, roomID domain.RoomID, sink contract.EventSink) error
	Leave(roomID domain.RoomID, sink contract.EventSink)
	Send(ctx context.Context, sender domain.Identity, roomID domain.RoomID, content string) (domain.Message, error)
}

type Config struct {
	BufferSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
}

// readTimeout gives a peer two ping periods to answer.
func (c Config) readTimeout() time.Duration {
	return 2 * c.PingInterval
}

// Gateway upgrades HTTP requests on /ws/chat/{room_id}/ and runs one Session per connection.
type Gateway struct {
	resolver contract.IdentityResolver
	chat     Chat
	config   Config
	metrics  *observability.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader
	// mu orders admissions against Shutdown so no session starts after the wait began
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

func NewGateway(resolver contract.IdentityResolver, chat Chat, config Config, metrics *observability.Metrics, log *slog.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		resolver: resolver,
		chat:     chat,
		config:   config,
		metrics:  metrics,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(g.config.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return lo.ContainsBy(g.config.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, origin)
	})
}

// ServeHTTP accepts the upgrade first, then decides.
// Refusals are close frames with an application code, never HTTP statuses.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error
		g.log.Debug("Upgrade failed", "error", err)
		return
	}

	roomID := domain.RoomID(mux.Vars(r)[RoomVar])
	session := newSession(conn, roomID, g.chat, g.config, g.metrics, g.log)
	if !g.admit() {
		g.metrics.ConnectionRejected(observability.ReasonShuttingDown)
		session.reject(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer g.sessions.Done()

	session.identify(g.resolver.Resolve(r.Context(), auth.Credential(r)))
	if session.identity.IsAnonymous() {
		g.metrics.ConnectionRejected(observability.ReasonUnauthenticated)
		session.reject(CloseUnauthenticated, "unauthenticated")
		return
	}

	if err = g.chat.Join(r.Context(), session.identity, roomID, session.sink); err != nil {
		switch {
		case stdErrors.Is(err, errors.ErrNotMember), stdErrors.Is(err, errors.ErrUnauthenticated):
			g.metrics.ConnectionRejected(observability.ReasonForbidden)
			session.reject(CloseForbidden, "forbidden")
		default:
			g.log.Error("Join failed", "room_id", roomID, "error", err)
			g.metrics.ConnectionRejected(observability.ReasonUnavailable)
			session.reject(websocket.CloseInternalServerErr, "unavailable")
		}
		return
	}

	session.run(g.ctx)
}

// admit counts a new connection unless Shutdown has started.
func (g *Gateway) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return false
	}
	g.sessions.Add(1)
	return true
}

// Shutdown sends a going-away close to every connection and waits for their sessions to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.cancel()
	g.mu.Unlock()
	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
