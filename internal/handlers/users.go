package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckchat/internal/identity"
)

func (r *Router) listUsers(w http.ResponseWriter, req *http.Request) {
	users, err := r.svc.Accounts.Users(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (r *Router) userStatus(w http.ResponseWriter, req *http.Request) {
	p, err := r.svc.Presence.IsOnline(req.Context(), mux.Vars(req)["phone"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// getProfile answers {} for unknown identities
func (r *Router) getProfile(w http.ResponseWriter, req *http.Request) {
	u, err := r.svc.Accounts.Profile(req.Context(), mux.Vars(req)["phone"])
	if err != nil {
		respondErr(w, err)
		return
	}
	if u == nil {
		respondJSON(w, http.StatusOK, struct{}{})
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (r *Router) updateProfile(w http.ResponseWriter, req *http.Request) {
	var body ProfileRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Phone)) {
		return
	}
	u, err := r.svc.Accounts.UpdateProfile(req.Context(), body.Phone, body.ProfileUpdate)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": u})
}

func (r *Router) removePhoto(w http.ResponseWriter, req *http.Request) {
	var body PhoneRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if !authorize(w, req, identity.Normalize(body.Phone)) {
		return
	}
	if _, err := r.svc.Accounts.RemovePhoto(req.Context(), body.Phone); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (r *Router) addContact(w http.ResponseWriter, req *http.Request) {
	var body PhoneRequest
	if !decodeBody(w, req, &body) {
		return
	}
	u, err := r.svc.Accounts.AddContact(req.Context(), body.Phone, body.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (r *Router) listContacts(w http.ResponseWriter, req *http.Request) {
	contacts, err := r.svc.Accounts.Contacts(req.Context(), mux.Vars(req)["me"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contacts)
}
