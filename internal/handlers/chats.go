package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/middleware"
	"github.com/xelth-com/eckchat/internal/models"
)

// ChatsRequest names the acting identity and the counterparts it acts on.
// Other is the single-counterpart form.
type ChatsRequest struct {
	Me    string   `json:"me"`
	Chats []string `json:"chats"`
	Other string   `json:"other"`
}

func (c ChatsRequest) targets() []string {
	if c.Other == "" {
		return c.Chats
	}
	return append(append([]string{}, c.Chats...), c.Other)
}

// ToggleRequest adds or removes one target from a chat list.
type ToggleRequest struct {
	Me     string `json:"me"`
	Target string `json:"target"`
	Block  *bool  `json:"block,omitempty"`
	Add    *bool  `json:"add,omitempty"`
}

type listAction struct {
	list models.ChatList
	add  bool
}

var chatActions = map[string]listAction{
	"pin":       {models.ListPinned, true},
	"unpin":     {models.ListPinned, false},
	"archive":   {models.ListArchived, true},
	"unarchive": {models.ListArchived, false},
	"mute":      {models.ListMuted, true},
	"unmute":    {models.ListMuted, false},
	"delete":    {models.ListDeletedChats, true},
	"restore":   {models.ListDeletedChats, false},
}

func (r *Router) chatList(w http.ResponseWriter, req *http.Request) {
	rows, err := r.svc.Conversations.ChatList(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (r *Router) groupChatList(w http.ResponseWriter, req *http.Request) {
	rows, err := r.svc.Conversations.GroupChatList(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// chatAction applies pin, archive, mute or delete (and their inverses) to
// the listed chats.
func (r *Router) chatAction(w http.ResponseWriter, req *http.Request) {
	action, ok := chatActions[mux.Vars(req)["action"]]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown chat action")
		return
	}
	var body ChatsRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Me)) {
		return
	}
	ids, err := r.svc.Conversations.UpdateList(req.Context(), body.Me, action.list, body.targets(), action.add)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, string(action.list): ids})
}

func (r *Router) block(w http.ResponseWriter, req *http.Request) {
	r.toggle(w, req, models.ListBlocked)
}

func (r *Router) toggleFavourite(w http.ResponseWriter, req *http.Request) {
	r.toggle(w, req, models.ListFavourites)
}

func (r *Router) toggle(w http.ResponseWriter, req *http.Request, list models.ChatList) {
	var body ToggleRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Me)) {
		return
	}
	add := false
	switch {
	case body.Block != nil:
		add = *body.Block
	case body.Add != nil:
		add = *body.Add
	}
	ids, err := r.svc.Conversations.UpdateList(req.Context(), body.Me, list, []string{body.Target}, add)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{string(list): ids})
}

func (r *Router) listFor(list models.ChatList) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ids, err := r.svc.Conversations.List(req.Context(), mux.Vars(req)["me"], list)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, ids)
	}
}

// clearChats removes messages exchanged with the listed chats, or every
// message of me when none is listed.
func (r *Router) clearChats(w http.ResponseWriter, req *http.Request) {
	r.clear(w, req, false)
}

// deleteAllChats wipes every message of me and resets the deleted set.
func (r *Router) deleteAllChats(w http.ResponseWriter, req *http.Request) {
	r.clear(w, req, true)
}

func (r *Router) clear(w http.ResponseWriter, req *http.Request, reset bool) {
	var body ChatsRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Me)) {
		return
	}
	targets := body.targets()
	if reset {
		targets = nil
	}
	n, err := r.svc.Conversations.ClearChats(req.Context(), body.Me, targets, reset)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "deleted": n})
}

func (r *Router) markRead(w http.ResponseWriter, req *http.Request) {
	var body ChatsRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Me)) {
		return
	}
	n, err := r.svc.Conversations.MarkRead(req.Context(), body.Me, body.Other)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "updated": n})
}

func (r *Router) markUnread(w http.ResponseWriter, req *http.Request) {
	var body ChatsRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Me)) {
		return
	}
	if _, err := r.svc.Conversations.MarkUnread(req.Context(), body.Me, body.Other); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// messages returns the conversation of u1 and u2 as seen by ?as=, which
// defaults to u1.
func (r *Router) messages(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	me, other := vars["u1"], vars["u2"]
	if as := req.URL.Query().Get("as"); as != "" && identity.Normalize(as) == identity.Normalize(other) {
		me, other = other, me
	}
	if !authorize(w, req, identity.Normalize(me)) {
		return
	}
	msgs, err := r.svc.Conversations.LoadConversation(req.Context(), me, other)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (r *Router) groupMessages(w http.ResponseWriter, req *http.Request) {
	viewer := req.URL.Query().Get("as")
	if id := middleware.IdentityFrom(req.Context()); id != "" {
		viewer = id
	}
	msgs, err := r.svc.Conversations.LoadGroupConversation(req.Context(), mux.Vars(req)["groupId"], viewer)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}
