// Package group manages group creation and membership and keeps live
// connections joined to the rooms of the groups their identity belongs to.
package group

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store"
)

// RoomJoiner moves an identity's live connections in and out of rooms.
type RoomJoiner interface {
	JoinRoom(identity, room string)
	LeaveRoom(identity, room string)
}

// Service owns group membership.
type Service struct {
	groups store.GroupRepository
	chats  cache.ChatListCache
	out    room.Deliverer
	rooms  RoomJoiner
	now    func() time.Time
}

// NewService wires the service. out and rooms may be set later through
// Attach, since the presence registry itself depends on RoomsFor. chats may
// be nil.
func NewService(groups store.GroupRepository, chats cache.ChatListCache) *Service {
	if chats == nil {
		chats = cache.Noop{}
	}
	return &Service{
		groups: groups,
		chats:  chats,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Attach sets the delivery and room membership collaborators.
func (s *Service) Attach(out room.Deliverer, rooms RoomJoiner) {
	s.out = out
	s.rooms = rooms
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create stores a group whose members are the deduplicated, normalized
// members plus the creator, then joins their live connections to the group
// room and sends groupCreated to each.
func (s *Service) Create(ctx context.Context, name string, members []string, creator string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	creator = identity.Normalize(creator)
	if name == "" {
		return nil, apperr.Required("name")
	}
	if creator == "" {
		return nil, apperr.Required("createdBy")
	}

	g := &models.Group{
		Name:      name,
		Members:   identity.NormalizeAll(append(append([]string{}, members...), creator)),
		CreatedBy: creator,
		CreatedAt: s.now(),
	}
	if err := s.groups.Create(ctx, g); err != nil {
		log.Error("create group", "err", err)
		return nil, err
	}
	log.Info("group created", "id", g.ID, "members", len(g.Members))

	for _, m := range g.Members {
		s.join(m, g.RoomID())
	}
	s.invalidate(ctx, g.Members)
	s.deliver(ctx, g.Members, models.EventGroupCreated, g)
	return g, nil
}

// RoomsFor lists the room ids of every group identity belongs to.
func (s *Service) RoomsFor(ctx context.Context, id string) ([]string, error) {
	groups, err := s.groups.ForMember(ctx, id)
	if err != nil {
		return nil, err
	}
	rooms := make([]string, len(groups))
	for i := range groups {
		rooms[i] = groups[i].RoomID()
	}
	return rooms, nil
}

// ForMember returns the groups identity belongs to, newest first.
func (s *Service) ForMember(ctx context.Context, id string) ([]models.Group, error) {
	id = identity.Normalize(id)
	if id == "" {
		return nil, apperr.Required("me")
	}
	return s.groups.ForMember(ctx, id)
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, id string) (*models.Group, error) {
	if id == "" {
		return nil, apperr.Required("groupId")
	}
	return s.groups.FindByID(ctx, id)
}

// AddMembers adds identities to the group. Existing members are left
// alone; live connections of the others join the group room.
func (s *Service) AddMembers(ctx context.Context, groupID string, ids []string) (*models.Group, error) {
	ids = identity.NormalizeAll(ids)
	if groupID == "" {
		return nil, apperr.Required("groupId")
	}
	if len(ids) == 0 {
		return nil, apperr.Required("members")
	}
	g, err := s.groups.AddMembers(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range ids {
		s.join(m, g.RoomID())
	}
	s.invalidate(ctx, g.Members)
	s.deliver(ctx, g.Members, models.EventGroupUpdated, g)
	return g, nil
}

// RemoveMembers drops identities from the group and takes their live
// connections out of the group room. Removed members are told as well.
func (s *Service) RemoveMembers(ctx context.Context, groupID string, ids []string) (*models.Group, error) {
	ids = identity.NormalizeAll(ids)
	if groupID == "" {
		return nil, apperr.Required("groupId")
	}
	if len(ids) == 0 {
		return nil, apperr.Required("members")
	}
	g, err := s.groups.RemoveMembers(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}
	if s.rooms != nil {
		for _, m := range ids {
			s.rooms.LeaveRoom(m, g.RoomID())
		}
	}
	affected := append(append([]string{}, g.Members...), ids...)
	s.invalidate(ctx, affected)
	s.deliver(ctx, affected, models.EventGroupUpdated, g)
	return g, nil
}

// Members returns the member identities of a group.
func (s *Service) Members(ctx context.Context, groupID string) ([]string, error) {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

func (s *Service) join(id, roomID string) {
	if s.rooms != nil {
		s.rooms.JoinRoom(id, roomID)
	}
}

// invalidate drops the cached chat lists of ids so their next read shows
// the membership change.
func (s *Service) invalidate(ctx context.Context, ids []string) {
	if err := s.chats.Invalidate(ctx, ids...); err != nil {
		log.Warn("invalidate chat lists", "identities", ids, "err", err)
	}
}

func (s *Service) deliver(ctx context.Context, ids []string, event string, g *models.Group) {
	if s.out != nil {
		s.out.DeliverToIdentities(ctx, ids, event, g)
	}
}
