// Package room delivers server events to the live connections joined to a
// room.
package room

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/presence"
)

// Resolver looks up the connections to deliver to.
type Resolver interface {
	ConnectionsIn(room string) []presence.Conn
	AllConnections(exceptConnID string) []presence.Conn
}

// Deliverer is the delivery surface consumed by the chat services.
type Deliverer interface {
	Deliver(ctx context.Context, room, event string, payload any) int
	DeliverToIdentity(ctx context.Context, identity, event string, payload any) int
	DeliverToIdentities(ctx context.Context, identities []string, event string, payload any) int
	Broadcast(ctx context.Context, event string, payload any, exceptConnID string) int
}

const shards = 64

// Router pushes frames to connections. Deliveries into the same room are
// serialized, so one sender's events reach every member in submission order.
type Router struct {
	resolver Resolver
	locks    [shards]sync.Mutex
	global   sync.Mutex
}

// NewRouter creates a router over r.
func NewRouter(r Resolver) *Router {
	return &Router{resolver: r}
}

var _ Deliverer = (*Router)(nil)

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(models.Frame{Event: event, Data: payload})
}

// Deliver sends event to every connection joined to room and returns how
// many accepted the frame. Closed or saturated connections are skipped.
func (r *Router) Deliver(ctx context.Context, room, event string, payload any) int {
	if room == "" {
		return 0
	}
	frame, err := encode(event, payload)
	if err != nil {
		log.Error("encode frame", "event", event, "err", err)
		return 0
	}
	mu := &r.locks[shardOf(room)]
	mu.Lock()
	defer mu.Unlock()
	return push(r.resolver.ConnectionsIn(room), event, frame, room)
}

// DeliverToIdentity delivers into identity's personal room.
func (r *Router) DeliverToIdentity(ctx context.Context, identity, event string, payload any) int {
	return r.Deliver(ctx, identity, event, payload)
}

// DeliverToIdentities delivers into each distinct personal room once.
func (r *Router) DeliverToIdentities(ctx context.Context, identities []string, event string, payload any) int {
	seen := make(map[string]struct{}, len(identities))
	n := 0
	for _, id := range identities {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		n += r.Deliver(ctx, id, event, payload)
	}
	return n
}

// Broadcast sends event to every connection except exceptConnID.
func (r *Router) Broadcast(ctx context.Context, event string, payload any, exceptConnID string) int {
	frame, err := encode(event, payload)
	if err != nil {
		log.Error("encode frame", "event", event, "err", err)
		return 0
	}
	r.global.Lock()
	defer r.global.Unlock()
	return push(r.resolver.AllConnections(exceptConnID), event, frame, "*")
}

func push(conns []presence.Conn, event string, frame []byte, room string) int {
	sent := 0
	for _, c := range conns {
		if c.Send(frame) {
			sent++
			continue
		}
		metrics.FramesDropped.WithLabelValues(event).Inc()
		log.Debug("frame dropped", "event", event, "room", room, "conn", c.ID())
	}
	if sent > 0 {
		metrics.FramesDelivered.WithLabelValues(event).Add(float64(sent))
	}
	return sent
}

func shardOf(room string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(room))
	return h.Sum32() % shards
}
