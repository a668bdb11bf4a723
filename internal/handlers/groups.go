package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/identity"
)

// GroupRequest creates a group or changes its membership.
type GroupRequest struct {
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"createdBy"`
}

func (r *Router) listGroups(w http.ResponseWriter, req *http.Request) {
	groups, err := r.svc.Groups.ForMember(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (r *Router) createGroup(w http.ResponseWriter, req *http.Request) {
	var body GroupRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.CreatedBy)) {
		return
	}
	g, err := r.svc.Groups.Create(req.Context(), body.Name, body.Members, body.CreatedBy)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

func (r *Router) addMembers(w http.ResponseWriter, req *http.Request) {
	var body GroupRequest
	if !decodeBody(w, req, &body) {
		return
	}
	g, err := r.svc.Groups.AddMembers(req.Context(), mux.Vars(req)["id"], body.Members)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

func (r *Router) removeMembers(w http.ResponseWriter, req *http.Request) {
	var body GroupRequest
	if !decodeBody(w, req, &body) {
		return
	}
	g, err := r.svc.Groups.RemoveMembers(req.Context(), mux.Vars(req)["id"], body.Members)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}
