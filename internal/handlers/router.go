// Package handlers is the REST surface of the chat server.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/account"
	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/buildinfo"
	"github.com/xelth-com/eckchat/internal/conversation"
	"github.com/xelth-com/eckchat/internal/group"
	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/middleware"
	"github.com/xelth-com/eckchat/internal/presence"
	"github.com/xelth-com/eckchat/internal/relay"
	"github.com/xelth-com/eckchat/internal/status"
)

// Services are the collaborators the routes call into.
type Services struct {
	Accounts      *account.Service
	Presence      *presence.Registry
	Conversations *conversation.Service
	Groups        *group.Service
	Statuses      *status.Service
	Relay         *relay.Relay
}

// Options tune the router.
type Options struct {
	// JWTSecret, when set, guards every /api route except auth.
	JWTSecret      string
	MetricsEnabled bool
	// Websocket serves /ws when non-nil.
	Websocket http.Handler
}

// Router wraps the mux router and the chat services
type Router struct {
	*mux.Router
	svc Services
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(svc Services, opts Options) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		svc:    svc,
	}
	r.Use(middleware.Logging)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	if opts.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	if opts.Websocket != nil {
		r.Handle("/ws", opts.Websocket)
	}

	// Auth routes
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", r.register).Methods("POST")
	auth.HandleFunc("/login", r.login).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Protected routes
	api = api.NewRoute().Subrouter()
	api.Use(middleware.Auth(opts.JWTSecret))

	api.HandleFunc("/users/status/{phone}", r.userStatus).Methods("GET")
	api.HandleFunc("/users/{me}", r.listUsers).Methods("GET")
	api.HandleFunc("/profile/{phone}", r.getProfile).Methods("GET")
	api.HandleFunc("/profile", r.updateProfile).Methods("POST")
	api.HandleFunc("/profile/remove", r.removePhoto).Methods("POST")
	api.HandleFunc("/contacts", r.addContact).Methods("POST")
	api.HandleFunc("/contacts/{me}", r.listContacts).Methods("GET")

	api.HandleFunc("/block", r.block).Methods("POST")
	api.HandleFunc("/block/{me}", r.listFor("blocked")).Methods("GET")
	api.HandleFunc("/favourites/toggle", r.toggleFavourite).Methods("POST")
	api.HandleFunc("/favourites/{me}", r.listFor("favourites")).Methods("GET")

	api.HandleFunc("/chats/clear", r.clearChats).Methods("POST")
	api.HandleFunc("/chats/delete-all", r.deleteAllChats).Methods("POST")
	api.HandleFunc("/chats/mark-read", r.markRead).Methods("POST")
	api.HandleFunc("/chats/mark-unread", r.markUnread).Methods("POST")
	api.HandleFunc("/chats/{action}", r.chatAction).Methods("POST")
	api.HandleFunc("/chats/{me}", r.chatList).Methods("GET")
	api.HandleFunc("/group-chats/{me}", r.groupChatList).Methods("GET")

	api.HandleFunc("/messages/group/{groupId}", r.groupMessages).Methods("GET")
	api.HandleFunc("/messages/{u1}/{u2}", r.messages).Methods("GET")

	api.HandleFunc("/groups", r.createGroup).Methods("POST")
	api.HandleFunc("/groups/{id}/members", r.addMembers).Methods("POST")
	api.HandleFunc("/groups/{id}/members/remove", r.removeMembers).Methods("POST")
	api.HandleFunc("/groups/{me}", r.listGroups).Methods("GET")

	api.HandleFunc("/status", r.postStatus).Methods("POST")
	api.HandleFunc("/status/feed/{me}", r.statusFeed).Methods("GET")
	api.HandleFunc("/status/view", r.viewStatus).Methods("POST")
	api.HandleFunc("/status/delete", r.deleteStatus).Methods("POST")
	api.HandleFunc("/status/{id}/views", r.statusViews).Methods("GET")

	api.HandleFunc("/calls/log", r.logCall).Methods("POST")
	api.HandleFunc("/calls/{me}", r.callHistory).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns the build and process information
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, buildinfo.Current())
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// authorize rejects requests whose token names another identity than the
// acting one. Unauthenticated deployments pass.
func authorize(w http.ResponseWriter, req *http.Request, actor string) bool {
	id := middleware.IdentityFrom(req.Context())
	if id == "" || id == actor {
		return true
	}
	respondError(w, http.StatusForbidden, "forbidden")
	return false
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps a service error to its status code.
func respondErr(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", apperr.KindOf(err), "err", err)
		respondError(w, status, "internal error")
		return
	}
	respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  apperr.KindOf(err),
	})
}
