package models

import (
	"slices"
	"time"
)

// ChatList names one of the per-user identity sets kept on a User.
type ChatList string

const (
	ListBlocked      ChatList = "blocked"
	ListFavourites   ChatList = "favourites"
	ListPinned       ChatList = "pinned"
	ListArchived     ChatList = "archived"
	ListMuted        ChatList = "muted"
	ListDeletedChats ChatList = "deletedChats"
)

// ChatLists is every ChatList, in storage order.
var ChatLists = []ChatList{ListBlocked, ListFavourites, ListPinned, ListArchived, ListMuted, ListDeletedChats}

// Valid reports whether l is a known list name.
func (l ChatList) Valid() bool {
	return slices.Contains(ChatLists, l)
}

// User is the account record keyed by normalized phone identity.
// Standardized: Go (PascalCase) -> storage (snake_case) -> JSON (camelCase)
type User struct {
	Phone    string     `json:"phone"`
	Name     string     `json:"name,omitempty"`
	About    string     `json:"about,omitempty"`
	Photo    string     `json:"photo,omitempty"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`

	Blocked      []string `json:"blocked"`
	Favourites   []string `json:"favourites"`
	Pinned       []string `json:"pinnedChats"`
	Archived     []string `json:"archivedChats"`
	Muted        []string `json:"mutedChats"`
	DeletedChats []string `json:"deletedChats"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List returns the identity set named by l.
func (u *User) List(l ChatList) []string {
	if u == nil {
		return nil
	}
	switch l {
	case ListBlocked:
		return u.Blocked
	case ListFavourites:
		return u.Favourites
	case ListPinned:
		return u.Pinned
	case ListArchived:
		return u.Archived
	case ListMuted:
		return u.Muted
	case ListDeletedChats:
		return u.DeletedChats
	}
	return nil
}

// SetList replaces the identity set named by l.
func (u *User) SetList(l ChatList, ids []string) {
	switch l {
	case ListBlocked:
		u.Blocked = ids
	case ListFavourites:
		u.Favourites = ids
	case ListPinned:
		u.Pinned = ids
	case ListArchived:
		u.Archived = ids
	case ListMuted:
		u.Muted = ids
	case ListDeletedChats:
		u.DeletedChats = ids
	}
}

// InList reports whether id is a member of the set named by l.
func (u *User) InList(l ChatList, id string) bool {
	return slices.Contains(u.List(l), id)
}

// HasBlocked reports whether u blocked id.
func (u *User) HasBlocked(id string) bool {
	return u.InList(ListBlocked, id)
}

// Presence is the point-in-time online state of an identity.
type Presence struct {
	Phone    string     `json:"phone"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	About *string `json:"about,omitempty"`
	Photo *string `json:"photo,omitempty"`
}

// ProfileUpdated is the payload of profileUpdated. Photo is empty once
// removed.
type ProfileUpdated struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	About string `json:"about"`
	Photo string `json:"photo"`
}

// AddToSet returns set with id appended unless already present.
func AddToSet(set []string, ids ...string) []string {
	for _, id := range ids {
		if !slices.Contains(set, id) {
			set = append(set, id)
		}
	}
	return set
}

// RemoveFromSet returns set without any of ids.
func RemoveFromSet(set []string, ids ...string) []string {
	out := set[:0:0]
	for _, s := range set {
		if !slices.Contains(ids, s) {
			out = append(out, s)
		}
	}
	return out
}
