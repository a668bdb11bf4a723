package gormstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/xelth-com/eckchat/internal/models"
)

// userRow is the relational form of models.User. Chat lists live in
// user_list_entries.
type userRow struct {
	Phone     string `gorm:"primaryKey;size:32"`
	Name      string `gorm:"size:255"`
	About     string `gorm:"type:text"`
	Photo     string `gorm:"type:text"`
	Online    bool   `gorm:"not null;default:false"`
	LastSeen  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "users" }

// userListEntry is one member of one of a user's chat lists.
type userListEntry struct {
	Phone     string `gorm:"primaryKey;size:32"`
	List      string `gorm:"primaryKey;size:32"`
	Target    string `gorm:"primaryKey;size:32"`
	CreatedAt time.Time
}

func (userListEntry) TableName() string { return "user_list_entries" }

type messageRow struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Sender             string `gorm:"not null;index:idx_messages_pair,priority:1;size:32"`
	Recipient          string `gorm:"not null;default:'';index:idx_messages_pair,priority:2;size:32"`
	GroupID            string `gorm:"not null;default:'';index;size:36"`
	Text               string `gorm:"type:text"`
	File               datatypes.JSONType[*models.File]
	CreatedAt          time.Time `gorm:"index"`
	Delivered          bool      `gorm:"not null;default:false"`
	Seen               bool      `gorm:"not null;default:false"`
	DeletedForEveryone bool      `gorm:"not null;default:false"`
}

func (messageRow) TableName() string { return "messages" }

// messageDeletion records that Identity hid MessageID for itself.
type messageDeletion struct {
	MessageID string `gorm:"primaryKey;size:36"`
	Identity  string `gorm:"primaryKey;size:32"`
}

func (messageDeletion) TableName() string { return "message_deletions" }

type groupRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"not null;size:255"`
	CreatedBy string `gorm:"size:32"`
	CreatedAt time.Time
}

func (groupRow) TableName() string { return "groups" }

type groupMember struct {
	GroupID  string `gorm:"primaryKey;size:36"`
	Phone    string `gorm:"primaryKey;size:32;index"`
	Position int    `gorm:"not null;default:0"`
}

func (groupMember) TableName() string { return "group_members" }

type statusRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Phone     string `gorm:"not null;index;size:32"`
	Text      string `gorm:"type:text"`
	Image     string `gorm:"type:text"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (statusRow) TableName() string { return "statuses" }

type statusView struct {
	StatusID string `gorm:"primaryKey;size:36"`
	Phone    string `gorm:"primaryKey;size:32"`
	ViewedAt time.Time
}

func (statusView) TableName() string { return "status_views" }

type callLogRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Caller    string `gorm:"not null;index;size:32"`
	Callee    string `gorm:"not null;index;size:32"`
	Type      string `gorm:"size:16"`
	Status    string `gorm:"size:16"`
	Duration  int
	CreatedAt time.Time `gorm:"index"`
}

func (callLogRow) TableName() string { return "call_logs" }

// allRows lists every table for AutoMigrate.
var allRows = []interface{}{
	&userRow{}, &userListEntry{},
	&messageRow{}, &messageDeletion{},
	&groupRow{}, &groupMember{},
	&statusRow{}, &statusView{},
	&callLogRow{},
}

func (r *userRow) toModel(lists []userListEntry) *models.User {
	u := &models.User{
		Phone:     r.Phone,
		Name:      r.Name,
		About:     r.About,
		Photo:     r.Photo,
		Online:    r.Online,
		LastSeen:  r.LastSeen,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, l := range models.ChatLists {
		u.SetList(l, []string{})
	}
	for _, e := range lists {
		l := models.ChatList(e.List)
		u.SetList(l, append(u.List(l), e.Target))
	}
	return u
}

func messageRowFrom(m *models.Message) *messageRow {
	return &messageRow{
		ID:                 m.ID,
		Sender:             m.From,
		Recipient:          m.To,
		GroupID:            m.GroupID,
		Text:               m.Text,
		File:               datatypes.NewJSONType(m.File),
		CreatedAt:          m.CreatedAt,
		Delivered:          m.Delivered,
		Seen:               m.Seen,
		DeletedForEveryone: m.DeletedForEveryone,
	}
}

func (r *messageRow) toModel(deletedFor []string) models.Message {
	if deletedFor == nil {
		deletedFor = []string{}
	}
	return models.Message{
		ID:                 r.ID,
		From:               r.Sender,
		To:                 r.Recipient,
		GroupID:            r.GroupID,
		Text:               r.Text,
		File:               r.File.Data(),
		CreatedAt:          r.CreatedAt,
		Delivered:          r.Delivered,
		Seen:               r.Seen,
		DeletedFor:         deletedFor,
		DeletedForEveryone: r.DeletedForEveryone,
	}
}

func (r *statusRow) toModel(views []statusView) models.Status {
	st := models.Status{
		ID:        r.ID,
		Phone:     r.Phone,
		Text:      r.Text,
		Image:     r.Image,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Views:     []models.StatusView{},
	}
	for _, v := range views {
		st.Views = append(st.Views, models.StatusView{Phone: v.Phone, ViewedAt: v.ViewedAt})
	}
	return st
}

func (r *callLogRow) toModel() models.CallLog {
	return models.CallLog{
		ID:        r.ID,
		From:      r.Caller,
		To:        r.Callee,
		Type:      r.Type,
		Status:    r.Status,
		Duration:  r.Duration,
		CreatedAt: r.CreatedAt,
	}
}
