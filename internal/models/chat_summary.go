package models

import (
	"slices"
	"time"
)

// ChatSummary is one personal row of a chat list.
type ChatSummary struct {
	Phone         string    `json:"phone"`
	Name          string    `json:"name,omitempty"`
	Photo         string    `json:"photo,omitempty"`
	Online        bool      `json:"online"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Unread        int64     `json:"unread"`
	Pinned        bool      `json:"pinned"`
	Archived      bool      `json:"archived"`
	Muted         bool      `json:"muted"`
	Favourite     bool      `json:"favourite"`
}

// GroupChatSummary is one group row of a chat list.
type GroupChatSummary struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	IsGroup       bool      `json:"isGroup"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Unread        int64     `json:"unread"`
}

// SortChatSummaries orders pinned rows first, archived rows last, then by
// latest message descending.
func SortChatSummaries(rows []ChatSummary) {
	slices.SortStableFunc(rows, func(a, b ChatSummary) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		if a.Archived != b.Archived {
			if a.Archived {
				return 1
			}
			return -1
		}
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
}

// SortGroupChatSummaries orders rows by latest message descending.
func SortGroupChatSummaries(rows []GroupChatSummary) {
	slices.SortStableFunc(rows, func(a, b GroupChatSummary) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
}
