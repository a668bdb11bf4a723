package models

import "time"

// DefaultStatusTTL is how long a status post stays visible.
const DefaultStatusTTL = 24 * time.Hour

// StatusView records the latest time one viewer opened a status.
type StatusView struct {
	Phone    string    `json:"phone"`
	ViewedAt time.Time `json:"viewedAt"`
}

// Status is an ephemeral post that expires a fixed time after creation.
type Status struct {
	ID        string       `json:"_id"`
	Phone     string       `json:"phone"`
	Text      string       `json:"text,omitempty"`
	Image     string       `json:"image,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Views     []StatusView `json:"views"`
}

// Expired reports whether s is past its expiry at now.
func (s *Status) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RecordView upserts viewer into the view list; an existing entry gets the
// newer timestamp.
func (s *Status) RecordView(viewer string, at time.Time) {
	for i := range s.Views {
		if s.Views[i].Phone == viewer {
			s.Views[i].ViewedAt = at
			return
		}
	}
	s.Views = append(s.Views, StatusView{Phone: viewer, ViewedAt: at})
}
