package models

import (
	"slices"
	"time"
)

// Tombstone replaces the text of a message deleted for everyone.
const Tombstone = "This message was deleted"

// File types accepted on sendFile.
const (
	FileTypeMedia    = "media"
	FileTypeDocument = "document"
	FileTypeAudio    = "audio"
)

// File is the attachment payload of a file message.
type File struct {
	FileType string `json:"fileType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileData string `json:"fileData,omitempty"` // base64
}

// Message is one chat message. Exactly one of To and GroupID is set.
type Message struct {
	ID      string `json:"_id"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	Text    string `json:"text"`
	*File

	CreatedAt          time.Time `json:"createdAt"`
	Delivered          bool      `json:"delivered"`
	Seen               bool      `json:"seen"`
	DeletedFor         []string  `json:"deletedFor"`
	DeletedForEveryone bool      `json:"deletedForEveryone"`
}

// IsGroup reports whether m belongs to a group conversation.
func (m *Message) IsGroup() bool {
	return m.GroupID != ""
}

// IsDeletedFor reports whether identity hid m for itself.
func (m *Message) IsDeletedFor(identity string) bool {
	return slices.Contains(m.DeletedFor, identity)
}

// VisibleTo reports whether m should appear in identity's copy of the
// conversation.
func (m *Message) VisibleTo(identity string) bool {
	return identity == "" || !m.IsDeletedFor(identity)
}

// ApplyTombstone turns m into its deleted-for-everyone form. The file
// payload is dropped along with the text.
func (m *Message) ApplyTombstone() {
	m.Text = Tombstone
	m.File = nil
	m.DeletedForEveryone = true
}

// Participants returns the identities of a personal message.
func (m *Message) Participants() []string {
	if m.IsGroup() {
		return []string{m.From}
	}
	if m.From == m.To {
		return []string{m.From}
	}
	return []string{m.From, m.To}
}

// SortMessages orders msgs by creation time ascending, ties by id.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
