package conversation

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/models"
)

// LoadConversation returns the personal chat between me and other, oldest
// first, without the messages me deleted for itself. Tombstoned messages
// stay in the result.
func (s *Service) LoadConversation(ctx context.Context, me, other string) ([]models.Message, error) {
	me, other = identity.Normalize(me), identity.Normalize(other)
	if err := requireFields(map[string]string{"me": me, "other": other}); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().Conversation(ctx, me, other)
	if err != nil {
		return nil, logFailure("load conversation", err)
	}
	return visible(msgs, me), nil
}

// LoadGroupConversation returns a group's messages oldest first. A non-empty
// viewer drops the messages it deleted for itself.
func (s *Service) LoadGroupConversation(ctx context.Context, groupID, viewer string) ([]models.Message, error) {
	if err := requireFields(map[string]string{"groupId": groupID}); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().GroupConversation(ctx, groupID)
	if err != nil {
		return nil, logFailure("load group conversation", err)
	}
	return visible(msgs, identity.Normalize(viewer)), nil
}

func visible(msgs []models.Message, viewer string) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.VisibleTo(viewer) {
			out = append(out, m)
		}
	}
	return out
}

// ChatList derives one row per other known identity, skipping the chats me
// deleted. Rows carry the latest visible message, the unread count and the
// chat flags, ordered pinned first, archived last, then newest first.
func (s *Service) ChatList(ctx context.Context, me string) ([]models.ChatSummary, error) {
	me = identity.Normalize(me)
	if err := requireFields(map[string]string{"me": me}); err != nil {
		return nil, err
	}

	rows, err := s.chats.GetChats(ctx, me)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn("read cached chat list", "identity", me, "err", err)
	case rows != nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return s.withPresence(rows), nil
	case s.chats.Available():
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	rows, err = s.buildChatList(ctx, me)
	if err != nil {
		return nil, logFailure("chat list", err)
	}
	if err := s.chats.SetChats(ctx, me, rows); err != nil {
		log.Warn("cache chat list", "identity", me, "err", err)
	}
	return s.withPresence(rows), nil
}

func (s *Service) buildChatList(ctx context.Context, me string) ([]models.ChatSummary, error) {
	owner, err := s.findUser(ctx, me)
	if err != nil {
		return nil, err
	}
	users, err := s.store.Users().List(ctx, append([]string{me}, owner.List(models.ListDeletedChats)...))
	if err != nil {
		return nil, err
	}

	msgs := s.store.Messages()
	rows := make([]models.ChatSummary, 0, len(users))
	for _, u := range users {
		row := models.ChatSummary{
			Phone:         u.Phone,
			Name:          u.Name,
			Photo:         u.Photo,
			Online:        u.Online,
			LastMessageAt: time.Unix(0, 0).UTC(),
			Pinned:        owner.InList(models.ListPinned, u.Phone),
			Archived:      owner.InList(models.ListArchived, u.Phone),
			Muted:         owner.InList(models.ListMuted, u.Phone),
			Favourite:     owner.InList(models.ListFavourites, u.Phone),
		}
		last, err := msgs.Latest(ctx, me, u.Phone)
		if err != nil {
			return nil, err
		}
		if last != nil {
			row.LastMessage = last.Text
			row.LastMessageAt = last.CreatedAt
		}
		if row.Unread, err = msgs.CountUnseen(ctx, u.Phone, me); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	models.SortChatSummaries(rows)
	return rows, nil
}

// withPresence overlays the live online flag on rows that may come from the
// cache.
func (s *Service) withPresence(rows []models.ChatSummary) []models.ChatSummary {
	if s.online == nil {
		return rows
	}
	for i := range rows {
		rows[i].Online = s.online.Online(rows[i].Phone)
	}
	return rows
}

// GroupChatList derives one row per group me belongs to, newest first.
// Unread counts the group's unseen messages not authored by me.
func (s *Service) GroupChatList(ctx context.Context, me string) ([]models.GroupChatSummary, error) {
	me = identity.Normalize(me)
	if err := requireFields(map[string]string{"me": me}); err != nil {
		return nil, err
	}

	rows, err := s.chats.GetGroupChats(ctx, me)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn("read cached group chat list", "identity", me, "err", err)
	case rows != nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return rows, nil
	case s.chats.Available():
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	groups, err := s.store.Groups().ForMember(ctx, me)
	if err != nil {
		return nil, logFailure("group chat list", err)
	}
	msgs := s.store.Messages()
	rows = make([]models.GroupChatSummary, 0, len(groups))
	for _, g := range groups {
		row := models.GroupChatSummary{
			ID:            g.ID,
			Name:          g.Name,
			IsGroup:       true,
			LastMessageAt: time.Unix(0, 0).UTC(),
		}
		last, err := msgs.LatestInGroup(ctx, g.ID)
		if err != nil {
			return nil, logFailure("group chat list", err)
		}
		if last != nil {
			row.LastMessage = last.Text
			row.LastMessageAt = last.CreatedAt
		}
		if row.Unread, err = msgs.CountGroupUnseen(ctx, g.ID, me); err != nil {
			return nil, logFailure("group chat list", err)
		}
		rows = append(rows, row)
	}
	models.SortGroupChatSummaries(rows)
	if err := s.chats.SetGroupChats(ctx, me, rows); err != nil {
		log.Warn("cache group chat list", "identity", me, "err", err)
	}
	return rows, nil
}

// UpdateList adds or removes targets from one of me's chat lists and
// returns the resulting list.
func (s *Service) UpdateList(ctx context.Context, me string, list models.ChatList, targets []string, add bool) ([]string, error) {
	me = identity.Normalize(me)
	targets = identity.NormalizeAll(targets)
	if err := requireFields(map[string]string{"me": me}); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, apperr.Required("target")
	}
	ids, err := s.store.Users().UpdateList(ctx, me, list, targets, add)
	if err != nil {
		return nil, logFailure("update "+string(list), err)
	}
	s.refresh(ctx, me)
	return ids, nil
}

// List returns one of me's chat lists; unknown identities have empty lists.
func (s *Service) List(ctx context.Context, me string, list models.ChatList) ([]string, error) {
	me = identity.Normalize(me)
	if err := requireFields(map[string]string{"me": me}); err != nil {
		return nil, err
	}
	if !list.Valid() {
		return nil, &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	u, err := s.findUser(ctx, me)
	if err != nil {
		return nil, logFailure("read "+string(list), err)
	}
	ids := u.List(list)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
