package handlers

import (
	"net/http"

	"github.com/xelth-com/eckchat/internal/models"
)

// PhoneRequest represents a register or login request
type PhoneRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// register creates an account; an existing phone is a 400
func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var body PhoneRequest
	if !decodeBody(w, req, &body) {
		return
	}
	sess, err := r.svc.Accounts.Register(req.Context(), body.Phone, body.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    sess.User,
		"token":   sess.Token,
	})
}

// login issues a token for an existing account; unknown phones are a 404
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var body PhoneRequest
	if !decodeBody(w, req, &body) {
		return
	}
	sess, err := r.svc.Accounts.Login(req.Context(), body.Phone)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    sess.User,
		"token":   sess.Token,
	})
}

// ProfileRequest updates the caller's profile. Absent fields are unchanged.
type ProfileRequest struct {
	Phone string `json:"phone"`
	models.ProfileUpdate
}
