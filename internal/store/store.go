// Package store defines the persistence gateway consumed by the chat
// services. Backends live in sub-packages and are selected by name.
package store

import (
	"context"
	"time"

	"github.com/xelth-com/eckchat/internal/models"
)

// Store groups the per-entity repositories of one backend.
type Store interface {
	Users() UserRepository
	Messages() MessageRepository
	Groups() GroupRepository
	Statuses() StatusRepository
	CallLogs() CallLogRepository
	Close(ctx context.Context) error
}

// UserRepository persists account, presence and per-user chat lists.
type UserRepository interface {
	// FindByIdentity returns *apperr.NotFoundError when absent.
	FindByIdentity(ctx context.Context, phone string) (*models.User, error)
	// FindMany returns the users that exist among phones, in no order.
	FindMany(ctx context.Context, phones []string) ([]models.User, error)
	// List returns every user except the excluded identities, ordered by phone.
	List(ctx context.Context, exclude []string) ([]models.User, error)
	// Upsert creates the user if missing; name is only set when non-empty.
	Upsert(ctx context.Context, phone, name string) (*models.User, error)
	UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error)
	// SetPresence upserts the online flag, and lastSeen when non-nil.
	SetPresence(ctx context.Context, phone string, online bool, lastSeen *time.Time) error
	// UpdateList adds (add=true) or removes targets from a chat list,
	// upserting the user, and returns the resulting list.
	UpdateList(ctx context.Context, phone string, list models.ChatList, targets []string, add bool) ([]string, error)
	ClearList(ctx context.Context, phone string, list models.ChatList) error
}

// SeenFilter selects the messages of one direction of a personal chat.
type SeenFilter struct {
	From string
	To   string
	// SkipDeleted excludes messages deleted for everyone or for To.
	SkipDeleted bool
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	// Create assigns ID and stores msg.
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// Conversation returns both directions between a and b, oldest first.
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
	// GroupConversation returns a group's messages not deleted for
	// everyone, oldest first.
	GroupConversation(ctx context.Context, groupID string) ([]models.Message, error)
	// MarkSeen flips seen=false to true for f and returns the count changed.
	MarkSeen(ctx context.Context, f SeenFilter) (int64, error)
	// MarkLatestUnseen flips the most recent qualifying message of f back
	// to unseen. Returns nil, nil when there is none.
	MarkLatestUnseen(ctx context.Context, f SeenFilter) (*models.Message, error)
	// AddDeletedFor adds identity to the message's deletedFor set.
	AddDeletedFor(ctx context.Context, id, identity string) (*models.Message, error)
	// Tombstone marks the message deleted for everyone and returns the
	// stored result.
	Tombstone(ctx context.Context, id string) (*models.Message, error)
	// Latest returns the newest message between me and other not deleted
	// for everyone nor for me; nil, nil when none.
	Latest(ctx context.Context, me, other string) (*models.Message, error)
	// CountUnseen counts from->to messages with seen=false not deleted for to.
	CountUnseen(ctx context.Context, from, to string) (int64, error)
	LatestInGroup(ctx context.Context, groupID string) (*models.Message, error)
	// CountGroupUnseen counts unseen group messages not authored by me.
	CountGroupUnseen(ctx context.Context, groupID, me string) (int64, error)
	// DeleteForIdentity physically removes messages sent or received by me,
	// limited to the listed counterparts when others is non-empty.
	DeleteForIdentity(ctx context.Context, me string, others []string) (int64, error)
}

// GroupRepository persists groups and membership.
type GroupRepository interface {
	// Create assigns ID and stores g.
	Create(ctx context.Context, g *models.Group) error
	FindByID(ctx context.Context, id string) (*models.Group, error)
	// ForMember returns the groups identity belongs to, newest first.
	ForMember(ctx context.Context, identity string) ([]models.Group, error)
	AddMembers(ctx context.Context, id string, identities []string) (*models.Group, error)
	RemoveMembers(ctx context.Context, id string, identities []string) (*models.Group, error)
}

// StatusRepository persists ephemeral status posts.
type StatusRepository interface {
	// Create assigns ID and stores s.
	Create(ctx context.Context, s *models.Status) error
	FindByID(ctx context.Context, id string) (*models.Status, error)
	// Active returns statuses expiring after now, newest first.
	Active(ctx context.Context, now time.Time) ([]models.Status, error)
	// RecordView upserts a viewer entry and returns the updated status.
	RecordView(ctx context.Context, id, viewer string, at time.Time) (*models.Status, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes statuses whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CallLogRepository persists finished calls.
type CallLogRepository interface {
	// Create assigns ID and stores c.
	Create(ctx context.Context, c *models.CallLog) error
	// ForIdentity returns calls from or to identity, newest first.
	ForIdentity(ctx context.Context, identity string, limit int) ([]models.CallLog, error)
}
