// Package app assembles the chat services, the websocket hub and the REST
// router over one store.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/xelth-com/eckchat/internal/account"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/conversation"
	"github.com/xelth-com/eckchat/internal/group"
	"github.com/xelth-com/eckchat/internal/handlers"
	"github.com/xelth-com/eckchat/internal/presence"
	"github.com/xelth-com/eckchat/internal/relay"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/status"
	"github.com/xelth-com/eckchat/internal/store"
	"github.com/xelth-com/eckchat/internal/websocket"
)

// Options configure the assembled application.
type Options struct {
	JWTSecret           string
	AllowedOrigins      string
	SendBuffer          int
	StatusTTL           time.Duration
	StatusSweepInterval time.Duration
	MetricsEnabled      bool
}

// App holds the wired components.
type App struct {
	Presence      *presence.Registry
	Router        *room.Router
	Accounts      *account.Service
	Conversations *conversation.Service
	Groups        *group.Service
	Statuses      *status.Service
	Relay         *relay.Relay
	Hub           *websocket.Hub
	Handler       http.Handler

	sweeper *status.Sweeper
}

// New wires every component over st. chats may be nil.
func New(st store.Store, chats cache.ChatListCache, opts Options) *App {
	if chats == nil {
		chats = cache.Noop{}
	}
	a := &App{}
	a.Groups = group.NewService(st.Groups(), chats)
	a.Presence = presence.NewRegistry(st.Users(), a.Groups)
	a.Router = room.NewRouter(a.Presence)
	a.Presence.SetBroadcaster(a.Router)
	a.Groups.Attach(a.Router, a.Presence)

	a.Accounts = account.NewService(st.Users(), a.Router, chats, opts.JWTSecret)
	a.Conversations = conversation.NewService(st, a.Router, chats, a.Presence)
	a.Statuses = status.NewService(st, a.Router, opts.StatusTTL)
	a.sweeper = status.NewSweeper(a.Statuses, opts.StatusSweepInterval)
	a.Relay = relay.New(a.Router, st.CallLogs(), a.Groups)

	a.Hub = websocket.NewHub(websocket.Services{
		Presence:      a.Presence,
		Conversations: a.Conversations,
		Groups:        a.Groups,
		Relay:         a.Relay,
	}, websocket.Options{
		JWTSecret:      opts.JWTSecret,
		SendBuffer:     opts.SendBuffer,
		AllowedOrigins: opts.AllowedOrigins,
	})

	a.Handler = handlers.NewRouter(handlers.Services{
		Accounts:      a.Accounts,
		Presence:      a.Presence,
		Conversations: a.Conversations,
		Groups:        a.Groups,
		Statuses:      a.Statuses,
		Relay:         a.Relay,
	}, handlers.Options{
		JWTSecret:      opts.JWTSecret,
		MetricsEnabled: opts.MetricsEnabled,
		Websocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(a.Hub, w, r)
		}),
	})
	return a
}

// Run starts the hub and the status sweeper and blocks until ctx is done
// and the hub has closed every connection.
func (a *App) Run(ctx context.Context) {
	go a.sweeper.Run(ctx)
	a.Hub.Run(ctx)
	a.Presence.Close()
}
