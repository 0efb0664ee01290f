package runtime

import (
	"context"
	"final-draft/contract"
	"final-draft/domain"
	"final-draft/domain/event"
	"final-draft/observability"
	"log/slog"
	"sync"
)

type Set map[contract.EventSink]struct{}

// room serializes publications so every subscriber sees them in call order.
type room struct {
	publishMu sync.Mutex
	sinks     Set // guarded by Registry.mu
}

// Registry is the group broadcaster: room key to the set of live sinks.
// Sinks are used as map keys and must be comparable (pointers in practice).
type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*room
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewRegistry(log *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[domain.RoomID]*room),
		log:     log,
		metrics: metrics,
	}
}

// Subscribe adds sink to the room. Events published after Subscribe returns are delivered to it.
// If the room does not yet exist in the registry, it is initialized on the fly.
func (r *Registry) Subscribe(roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.rooms[roomID]
	if !ok {
		g = &room{sinks: make(Set)}
		r.rooms[roomID] = g
		r.metrics.RoomOpened()
	}
	g.sinks[sink] = struct{}{}
}

// Unsubscribe is idempotent. It ensures no empty sets are left in the room map
// to prevent memory leaks over time.
func (r *Registry) Unsubscribe(roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(roomID, sink)
}

func (r *Registry) remove(roomID domain.RoomID, sink contract.EventSink) bool {
	g, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok = g.sinks[sink]; !ok {
		return false
	}
	delete(g.sinks, sink)
	// If no one is left in the room, remove the room entry entirely
	if len(g.sinks) == 0 {
		delete(r.rooms, roomID)
		r.metrics.RoomClosed()
	}
	return true
}

// Publish hands e to every sink subscribed to the room at the time of the call.
// Publications of the same room never interleave. A sink that refuses the event
// is evicted and closed, the others are not affected.
func (r *Registry) Publish(ctx context.Context, roomID domain.RoomID, e event.DomainEvent) {
	r.mu.RLock()
	g, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	g.publishMu.Lock()
	defer g.publishMu.Unlock()

	r.mu.RLock()
	sinks := make([]contract.EventSink, 0, len(g.sinks))
	for sink := range g.sinks {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.evict(roomID, sink, err)
			continue
		}
		r.metrics.EventDelivered()
	}
}

func (r *Registry) evict(roomID domain.RoomID, sink contract.EventSink, cause error) {
	r.mu.Lock()
	removed := r.remove(roomID, sink)
	r.mu.Unlock()
	if !removed {
		return
	}
	r.metrics.SlowConsumerEvicted()
	r.log.Warn("Subscriber evicted", "room_id", roomID, "error", cause)
	if err := sink.Close(); err != nil {
		r.log.Debug("Evicted sink close failed", "room_id", roomID, "error", err)
	}
}

func (r *Registry) Subscribers(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.rooms[roomID]; ok {
		return len(g.sinks)
	}
	return 0
}

// CloseAll drops every subscription and closes the sinks, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var sinks []contract.EventSink
	for roomID, g := range r.rooms {
		for sink := range g.sinks {
			sinks = append(sinks, sink)
		}
		delete(r.rooms, roomID)
		r.metrics.RoomClosed()
	}
	r.mu.Unlock()

	for _, sink := range sinks {
		_ = sink.Close()
	}
}
