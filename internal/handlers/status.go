package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/identity"
)

// StatusRequest posts, views or deletes a status.
type StatusRequest struct {
	Phone    string `json:"phone"`
	Text     string `json:"text"`
	Image    string `json:"image"`
	StatusID string `json:"statusId"`
}

func (r *Router) postStatus(w http.ResponseWriter, req *http.Request) {
	var body StatusRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Phone)) {
		return
	}
	s, err := r.svc.Statuses.Post(req.Context(), body.Phone, body.Text, body.Image)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (r *Router) statusFeed(w http.ResponseWriter, req *http.Request) {
	feed, err := r.svc.Statuses.Feed(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (r *Router) viewStatus(w http.ResponseWriter, req *http.Request) {
	var body StatusRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Phone)) {
		return
	}
	s, err := r.svc.Statuses.View(req.Context(), body.StatusID, body.Phone)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "views": len(s.Views)})
}

func (r *Router) statusViews(w http.ResponseWriter, req *http.Request) {
	views, err := r.svc.Statuses.Views(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// deleteStatus is owner only: 404 when missing, 403 for anyone else
func (r *Router) deleteStatus(w http.ResponseWriter, req *http.Request) {
	var body StatusRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Phone)) {
		return
	}
	if err := r.svc.Statuses.Delete(req.Context(), body.StatusID, body.Phone); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
