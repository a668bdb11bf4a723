package conversation

import (
	"context"

	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

// MarkSeen marks every unseen message other sent to me as seen, tells
// other's devices about the blue ticks and refreshes both chat lists.
// Messages authored by me are never touched. Returns the number flipped.
func (s *Service) MarkSeen(ctx context.Context, me, other string) (int64, error) {
	me, other = identity.Normalize(me), identity.Normalize(other)
	if err := requireFields(map[string]string{"me": me, "other": other}); err != nil {
		return 0, err
	}
	n, err := s.store.Messages().MarkSeen(ctx, store.SeenFilter{From: other, To: me})
	if err != nil {
		return 0, logFailure("mark seen", err)
	}
	s.out.DeliverToIdentity(ctx, other, models.EventMessagesSeen, SeenNotice{From: other, To: me})
	s.refresh(ctx, me, other)
	return n, nil
}

// MarkRead is the chat-list variant of MarkSeen: messages deleted for
// everyone or hidden by me stay untouched.
func (s *Service) MarkRead(ctx context.Context, me, other string) (int64, error) {
	me, other = identity.Normalize(me), identity.Normalize(other)
	if err := requireFields(map[string]string{"me": me, "other": other}); err != nil {
		return 0, err
	}
	n, err := s.store.Messages().MarkSeen(ctx, store.SeenFilter{From: other, To: me, SkipDeleted: true})
	if err != nil {
		return 0, logFailure("mark read", err)
	}
	s.out.DeliverToIdentity(ctx, other, models.EventMessageSeen, ReadNotice{By: me})
	s.refresh(ctx, me)
	return n, nil
}

// MarkUnread flips the newest visible message other sent to me back to
// unseen. It returns nil when there is no such message.
func (s *Service) MarkUnread(ctx context.Context, me, other string) (*models.Message, error) {
	me, other = identity.Normalize(me), identity.Normalize(other)
	if err := requireFields(map[string]string{"me": me, "other": other}); err != nil {
		return nil, err
	}
	msg, err := s.store.Messages().MarkLatestUnseen(ctx, store.SeenFilter{From: other, To: me, SkipDeleted: true})
	if err != nil {
		return nil, logFailure("mark unread", err)
	}
	s.refresh(ctx, me)
	return msg, nil
}
