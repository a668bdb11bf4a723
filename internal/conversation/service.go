// Package conversation implements the message lifecycle: sending with block
// checks, receipts, deletion, and the derived chat lists.
//
// Every mutation completes against the store and obtains the stored record
// before any event is delivered. A failure after persisting leaves the
// message stored but undelivered; nothing is delivered without a stored
// record.
package conversation

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store"
)

// OnlineChecker answers live presence for chat-list rows.
type OnlineChecker interface {
	Online(identity string) bool
}

// BlockedNotice is the payload of messageBlocked.
type BlockedNotice struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// SeenNotice is the payload of messagesSeen: messages From sent To were read.
type SeenNotice struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ReadNotice is the payload of messageSeen.
type ReadNotice struct {
	By string `json:"by"`
}

// Service is the conversation state machine.
type Service struct {
	store  store.Store
	out    room.Deliverer
	chats  cache.ChatListCache
	online OnlineChecker
	now    func() time.Time
}

// NewService wires the service. chats and online may be nil.
func NewService(st store.Store, out room.Deliverer, chats cache.ChatListCache, online OnlineChecker) *Service {
	if chats == nil {
		chats = cache.Noop{}
	}
	return &Service{
		store:  st,
		out:    out,
		chats:  chats,
		online: online,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Send delivers a text message from one identity to another.
func (s *Service) Send(ctx context.Context, from, to, text string) (*models.Message, error) {
	from, to = identity.Normalize(from), identity.Normalize(to)
	if err := requireFields(map[string]string{"from": from, "to": to, "text": text}); err != nil {
		return nil, err
	}
	if err := s.checkBlocked(ctx, from, to); err != nil {
		return nil, err
	}

	msg := &models.Message{
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: s.now(),
		Delivered: true,
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, logFailure("send message", err)
	}

	s.out.DeliverToIdentity(ctx, from, models.EventMessageSent, msg)
	s.out.DeliverToIdentity(ctx, to, models.EventReceiveMessage, msg)
	s.refresh(ctx, from, to)
	return msg, nil
}

// FileInput is a file send request.
type FileInput struct {
	From     string `json:"from"`
	To       string `json:"to"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
	// IsGroup makes To a group id.
	IsGroup bool `json:"isGroup"`
}

// FilePreview is the chat-list text of a file message.
func FilePreview(name string) string {
	return "📎 " + name
}

// SendFile delivers a file either to one identity or, with IsGroup, to
// every member of the group named by To.
func (s *Service) SendFile(ctx context.Context, in FileInput) (*models.Message, error) {
	from := identity.Normalize(in.From)
	to := in.To
	if !in.IsGroup {
		to = identity.Normalize(to)
	}
	if err := requireFields(map[string]string{"from": from, "to": to, "fileName": in.FileName}); err != nil {
		return nil, err
	}
	msg := &models.Message{
		From: from,
		Text: FilePreview(in.FileName),
		File: &models.File{
			FileType: in.FileType,
			FileName: in.FileName,
			MimeType: in.MimeType,
			FileData: in.Data,
		},
		CreatedAt: s.now(),
		Delivered: true,
	}

	if in.IsGroup {
		g, err := s.store.Groups().FindByID(ctx, to)
		if err != nil {
			return nil, logFailure("send group file", err)
		}
		msg.GroupID = g.ID
		if err := s.store.Messages().Create(ctx, msg); err != nil {
			return nil, logFailure("send group file", err)
		}
		s.fanOut(ctx, g, msg)
		return msg, nil
	}

	if err := s.checkBlocked(ctx, from, to); err != nil {
		return nil, err
	}
	msg.To = to
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, logFailure("send file", err)
	}
	s.out.DeliverToIdentities(ctx, []string{to, from}, models.EventReceiveFile, msg)
	s.refresh(ctx, from, to)
	return msg, nil
}

// SendGroupMessage stores a group message and delivers it to every member,
// the sender included. Groups carry no block relation.
func (s *Service) SendGroupMessage(ctx context.Context, groupID, from, text string) (*models.Message, error) {
	from = identity.Normalize(from)
	if err := requireFields(map[string]string{"groupId": groupID, "from": from, "text": text}); err != nil {
		return nil, err
	}
	g, err := s.store.Groups().FindByID(ctx, groupID)
	if err != nil {
		return nil, logFailure("send group message", err)
	}
	msg := &models.Message{
		From:      from,
		GroupID:   g.ID,
		Text:      text,
		CreatedAt: s.now(),
		Delivered: true,
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, logFailure("send group message", err)
	}
	s.fanOut(ctx, g, msg)
	return msg, nil
}

func (s *Service) fanOut(ctx context.Context, g *models.Group, msg *models.Message) {
	s.out.DeliverToIdentities(ctx, g.Members, models.EventReceiveGroupMessage, msg)
	s.refresh(ctx, g.Members...)
}

// checkBlocked rejects a personal send when either side blocked the other
// and tells the sender why.
func (s *Service) checkBlocked(ctx context.Context, from, to string) error {
	sender, err := s.findUser(ctx, from)
	if err != nil {
		return logFailure("check block", err)
	}
	receiver, err := s.findUser(ctx, to)
	if err != nil {
		return logFailure("check block", err)
	}

	var reason string
	switch {
	case receiver.HasBlocked(from):
		reason = apperr.ReasonBlockedByTarget
	case sender.HasBlocked(to):
		reason = apperr.ReasonYouBlocked
	default:
		return nil
	}
	log.Debug("send blocked", "from", from, "to", to, "reason", reason)
	s.out.DeliverToIdentity(ctx, from, models.EventMessageBlocked, BlockedNotice{To: to, Reason: reason})
	return &apperr.BlockedError{Reason: reason}
}

// findUser returns nil for unknown identities.
func (s *Service) findUser(ctx context.Context, phone string) (*models.User, error) {
	u, err := s.store.Users().FindByIdentity(ctx, phone)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	return u, err
}

// refresh drops the cached chat lists of ids and tells them to reload.
func (s *Service) refresh(ctx context.Context, ids ...string) {
	s.invalidate(ctx, ids...)
	s.out.DeliverToIdentities(ctx, ids, models.EventRefreshChatList, nil)
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if err := s.chats.Invalidate(ctx, ids...); err != nil {
		log.Warn("invalidate chat lists", "identities", ids, "err", err)
	}
}

// requireFields returns a ValidationError for the first empty field, in a
// stable order.
func requireFields(fields map[string]string) error {
	for _, name := range []string{"from", "to", "groupId", "messageId", "me", "other", "text", "fileName"} {
		if v, ok := fields[name]; ok && v == "" {
			return apperr.Required(name)
		}
	}
	return nil
}

func logFailure(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindPersistence {
		log.Error(op, "err", err)
	}
	return err
}
