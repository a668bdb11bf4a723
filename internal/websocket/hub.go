// Package websocket is the real-time transport: it upgrades connections,
// pumps frames, and dispatches inbound events to the chat services.
package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/xelth-com/eckchat/internal/conversation"
	"github.com/xelth-com/eckchat/internal/group"
	"github.com/xelth-com/eckchat/internal/presence"
	"github.com/xelth-com/eckchat/internal/relay"
)

// Services are the collaborators inbound events are dispatched to.
type Services struct {
	Presence      *presence.Registry
	Conversations *conversation.Service
	Groups        *group.Service
	Relay         *relay.Relay
}

// Options tune the transport.
type Options struct {
	// JWTSecret, when set, requires a token on upgrade.
	JWTSecret string
	// SendBuffer is the per-connection outbound frame buffer.
	SendBuffer int
	// AllowedOrigins is "*" or a comma separated origin list.
	AllowedOrigins string
}

// Hub tracks the live clients and owns their lifecycle.
type Hub struct {
	svc      Services
	handlers map[string]handlerFunc
	upgrader websocket.Upgrader

	jwtSecret  string
	sendBuffer int

	// Registered clients, owned by Run.
	clients map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	ctx  context.Context
	done chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(svc Services, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	h := &Hub{
		svc:        svc,
		jwtSecret:  opts.JWTSecret,
		sendBuffer: opts.SendBuffer,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        context.Background(),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	h.handlers = h.routes()
	return h
}

func originChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{})
	for _, o := range strings.Split(allowed, ",") {
		set[strings.TrimSpace(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run starts the hub's main loop. When ctx is done every client is closed
// and Run returns.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			log.Debug("client connected", "conn", client.ID())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				log.Debug("client disconnected", "conn", client.ID())
			}

		case <-ctx.Done():
			log.Info("Closing websocket clients", "count", len(h.clients))
			for client := range h.clients {
				h.svc.Presence.Unbind(context.WithoutCancel(ctx), client)
				client.close()
			}
			return
		}
	}
}

// registerClient makes c known to presence before any of its frames can be
// dispatched, then hands it to Run.
func (h *Hub) registerClient(c *Client) bool {
	h.svc.Presence.Register(c)
	select {
	case h.register <- c:
		return true
	case <-h.done:
		h.svc.Presence.Unbind(context.WithoutCancel(h.ctx), c)
		return false
	}
}

// unregisterClient releases c's presence and stops its writer.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
	h.svc.Presence.Unbind(context.WithoutCancel(h.ctx), c)
	c.close()
}
