package conversation

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
)

// DeleteForMe hides a message from one identity. Nothing is delivered; the
// change shows the next time the conversation is loaded.
func (s *Service) DeleteForMe(ctx context.Context, messageID, phone string) (*models.Message, error) {
	phone = identity.Normalize(phone)
	if err := requireFields(map[string]string{"messageId": messageID, "me": phone}); err != nil {
		return nil, err
	}
	msg, err := s.store.Messages().AddDeletedFor(ctx, messageID, phone)
	if err != nil {
		return nil, logFailure("delete for me", err)
	}
	s.invalidate(ctx, phone)
	return msg, nil
}

// DeleteForEveryone tombstones a message and delivers the stored result to
// its participants. A message already deleted for everyone is returned as
// is. When requester is set it must be the author.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID, requester string) (*models.Message, error) {
	if err := requireFields(map[string]string{"messageId": messageID}); err != nil {
		return nil, err
	}
	current, err := s.store.Messages().FindByID(ctx, messageID)
	if err != nil {
		return nil, logFailure("delete for everyone", err)
	}
	// Only the author may retract a message for everyone. Anonymous requests
	// are still accepted.
	if requester = identity.Normalize(requester); requester != "" && requester != current.From {
		return nil, &apperr.ForbiddenError{}
	}
	if current.DeletedForEveryone {
		return current, nil
	}

	msg, err := s.store.Messages().Tombstone(ctx, messageID)
	if err != nil {
		return nil, logFailure("delete for everyone", err)
	}
	log.Debug("message deleted for everyone", "id", msg.ID)

	recipients := msg.Participants()
	if msg.IsGroup() {
		g, err := s.store.Groups().FindByID(ctx, msg.GroupID)
		if err != nil {
			log.Warn("load group for tombstone", "group", msg.GroupID, "err", err)
		} else {
			recipients = g.Members
		}
	}
	s.out.DeliverToIdentities(ctx, recipients, models.EventMessageDeletedEveryone, msg)
	s.refresh(ctx, recipients...)
	return msg, nil
}

// ClearChats physically removes the personal messages of me, limited to
// others when given. Listed counterparts are also added to me's deleted
// chats; resetDeleted empties that set afterwards instead.
func (s *Service) ClearChats(ctx context.Context, me string, others []string, resetDeleted bool) (int64, error) {
	me = identity.Normalize(me)
	others = identity.NormalizeAll(others)
	if err := requireFields(map[string]string{"me": me}); err != nil {
		return 0, err
	}
	n, err := s.store.Messages().DeleteForIdentity(ctx, me, others)
	if err != nil {
		return 0, logFailure("clear chats", err)
	}
	if len(others) > 0 && !resetDeleted {
		if _, err := s.store.Users().UpdateList(ctx, me, models.ListDeletedChats, others, true); err != nil {
			return n, logFailure("clear chats", err)
		}
	}
	if resetDeleted {
		if err := s.store.Users().ClearList(ctx, me, models.ListDeletedChats); err != nil {
			return n, logFailure("clear chats", err)
		}
	}
	log.Info("chats cleared", "identity", me, "messages", n)
	s.refresh(ctx, append([]string{me}, others...)...)
	return n, nil
}
