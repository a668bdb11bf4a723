package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
)

func (r *Router) logCall(w http.ResponseWriter, req *http.Request) {
	var c models.CallLog
	if !decodeBody(w, req, &c) {
		return
	}
	if !authorize(w, req, identity.Normalize(c.From)) {
		return
	}
	c.ID = ""
	if err := r.svc.Relay.LogCall(req.Context(), &c); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// callHistory returns the latest calls of me, newest first
func (r *Router) callHistory(w http.ResponseWriter, req *http.Request) {
	calls, err := r.svc.Relay.History(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, calls)
}
