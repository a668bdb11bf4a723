package models

import (
	"slices"
	"time"
)

// Group is a named set of member identities sharing one broadcast room.
type Group struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether identity belongs to g.
func (g *Group) HasMember(identity string) bool {
	return slices.Contains(g.Members, identity)
}

// RoomID is the broadcast room of g.
func (g *Group) RoomID() string {
	return g.ID
}
