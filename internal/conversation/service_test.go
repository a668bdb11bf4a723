package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store/memstore"
)

const (
	alice = "9990001111"
	bob   = "9990002222"
	carol = "9990003333"
)

type delivery struct {
	room    string
	event   string
	payload any
}

type outbox struct {
	mu   sync.Mutex
	sent []delivery
}

var _ room.Deliverer = (*outbox)(nil)

func (o *outbox) Deliver(_ context.Context, r, event string, payload any) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, delivery{room: r, event: event, payload: payload})
	return 1
}

func (o *outbox) DeliverToIdentity(ctx context.Context, id, event string, payload any) int {
	return o.Deliver(ctx, id, event, payload)
}

func (o *outbox) DeliverToIdentities(ctx context.Context, ids []string, event string, payload any) int {
	seen := map[string]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			o.Deliver(ctx, id, event, payload)
		}
	}
	return len(seen)
}

func (o *outbox) Broadcast(ctx context.Context, event string, payload any, _ string) int {
	return o.Deliver(ctx, "*", event, payload)
}

func (o *outbox) to(r, event string) []delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []delivery
	for _, d := range o.sent {
		if d.room == r && d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func (o *outbox) reset() {
	o.mu.Lock()
	o.sent = nil
	o.mu.Unlock()
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memstore.Store
	out   *outbox
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), out: &outbox{}, clock: t0}
	f.svc = NewService(f.store, f.out, nil, nil)
	f.svc.SetClock(func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	})
	return f
}

func (f *fixture) block(t *testing.T, me, target string) {
	t.Helper()
	_, err := f.store.Users().UpdateList(context.Background(), me, models.ListBlocked, []string{target}, true)
	require.NoError(t, err)
}

func TestSendDeliversAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.svc.Send(ctx, "+91 999-000-1111", bob, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, alice, msg.From)
	require.True(t, msg.Delivered)
	require.False(t, msg.Seen)

	stored, err := f.store.Messages().FindByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.Text)

	require.Len(t, f.out.to(alice, models.EventMessageSent), 1)
	require.Len(t, f.out.to(bob, models.EventReceiveMessage), 1)
	require.Len(t, f.out.to(alice, models.EventRefreshChatList), 1)
	require.Len(t, f.out.to(bob, models.EventRefreshChatList), 1)
	require.Empty(t, f.out.to(alice, models.EventReceiveMessage))
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, tc := range []struct{ from, to, text, field string }{
		{"", bob, "x", "from"},
		{"abc", bob, "x", "from"},
		{alice, "", "x", "to"},
		{alice, bob, "", "text"},
	} {
		_, err := f.svc.Send(ctx, tc.from, tc.to, tc.text)
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve)
		require.Equal(t, tc.field, ve.Field)
	}
	require.Empty(t, f.out.sent)
}

func TestSendBlockedEitherDirection(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked by target", func(t *testing.T) {
		f := newFixture(t)
		f.block(t, alice, bob)

		_, err := f.svc.Send(ctx, bob, alice, "hi")
		var be *apperr.BlockedError
		require.ErrorAs(t, err, &be)
		require.Equal(t, apperr.ReasonBlockedByTarget, be.Reason)

		notices := f.out.to(bob, models.EventMessageBlocked)
		require.Len(t, notices, 1)
		require.Equal(t, BlockedNotice{To: alice, Reason: apperr.ReasonBlockedByTarget}, notices[0].payload)
		require.Len(t, f.out.sent, 1)

		msgs, err := f.store.Messages().Conversation(ctx, alice, bob)
		require.NoError(t, err)
		require.Empty(t, msgs)
	})

	t.Run("sender blocked target", func(t *testing.T) {
		f := newFixture(t)
		f.block(t, alice, bob)

		_, err := f.svc.Send(ctx, alice, bob, "hi")
		require.Equal(t, apperr.KindBlocked, apperr.KindOf(err))
		notices := f.out.to(alice, models.EventMessageBlocked)
		require.Len(t, notices, 1)
		require.Equal(t, apperr.ReasonYouBlocked, notices[0].payload.(BlockedNotice).Reason)
		require.Empty(t, f.out.to(bob, models.EventMessageBlocked))
	})

	t.Run("file send", func(t *testing.T) {
		f := newFixture(t)
		f.block(t, bob, alice)

		_, err := f.svc.SendFile(ctx, FileInput{From: alice, To: bob, FileName: "a.png", Data: "AA=="})
		require.Equal(t, apperr.KindBlocked, apperr.KindOf(err))
		msgs, err := f.store.Messages().Conversation(ctx, alice, bob)
		require.NoError(t, err)
		require.Empty(t, msgs)
	})
}

func TestSendFilePersonal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.svc.SendFile(ctx, FileInput{
		From: alice, To: bob, FileName: "report.pdf", FileType: models.FileTypeDocument,
		MimeType: "application/pdf", Data: "JVBERi0=",
	})
	require.NoError(t, err)
	require.Equal(t, "📎 report.pdf", msg.Text)
	require.Equal(t, "application/pdf", msg.MimeType)

	require.Len(t, f.out.to(alice, models.EventReceiveFile), 1)
	require.Len(t, f.out.to(bob, models.EventReceiveFile), 1)
	require.Len(t, f.out.to(bob, models.EventRefreshChatList), 1)
}

func TestSendFileGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := &models.Group{Name: "team", Members: []string{alice, bob, carol}, CreatedBy: alice}
	require.NoError(t, f.store.Groups().Create(ctx, g))

	msg, err := f.svc.SendFile(ctx, FileInput{From: alice, To: g.ID, FileName: "x.jpg", IsGroup: true})
	require.NoError(t, err)
	require.Equal(t, g.ID, msg.GroupID)
	require.Empty(t, msg.To)
	for _, m := range g.Members {
		require.Len(t, f.out.to(m, models.EventReceiveGroupMessage), 1)
	}

	_, err = f.svc.SendFile(ctx, FileInput{From: alice, To: "missing", FileName: "x.jpg", IsGroup: true})
	require.True(t, apperr.IsNotFound(err))
}

func TestSendGroupMessageReachesEveryMemberOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := &models.Group{Name: "team", Members: []string{alice, bob, carol}, CreatedBy: alice}
	require.NoError(t, f.store.Groups().Create(ctx, g))
	f.block(t, bob, alice)

	msg, err := f.svc.SendGroupMessage(ctx, g.ID, alice, "standup")
	require.NoError(t, err)
	require.Equal(t, g.ID, msg.GroupID)

	for _, m := range []string{alice, bob, carol} {
		require.Len(t, f.out.to(m, models.EventReceiveGroupMessage), 1, m)
		require.Len(t, f.out.to(m, models.EventRefreshChatList), 1, m)
	}

	_, err = f.svc.SendGroupMessage(ctx, "nope", alice, "x")
	require.True(t, apperr.IsNotFound(err))
	_, err = f.svc.SendGroupMessage(ctx, g.ID, alice, "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMarkSeenIsIdempotentAndDirectional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Send(ctx, bob, alice, "one")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, bob, alice, "two")
	require.NoError(t, err)
	mine, err := f.svc.Send(ctx, alice, bob, "mine")
	require.NoError(t, err)
	f.out.reset()

	n, err := f.svc.MarkSeen(ctx, alice, bob)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	seen := f.out.to(bob, models.EventMessagesSeen)
	require.Len(t, seen, 1)
	require.Equal(t, SeenNotice{From: bob, To: alice}, seen[0].payload)
	require.Len(t, f.out.to(alice, models.EventRefreshChatList), 1)
	require.Len(t, f.out.to(bob, models.EventRefreshChatList), 1)

	first, err := f.store.Messages().Conversation(ctx, alice, bob)
	require.NoError(t, err)

	n, err = f.svc.MarkSeen(ctx, alice, bob)
	require.NoError(t, err)
	require.Zero(t, n)
	second, err := f.store.Messages().Conversation(ctx, alice, bob)
	require.NoError(t, err)
	require.Equal(t, first, second)

	own, err := f.store.Messages().FindByID(ctx, mine.ID)
	require.NoError(t, err)
	require.False(t, own.Seen)
}

func TestMarkReadAndUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Send(ctx, bob, alice, "one")
	require.NoError(t, err)
	latest, err := f.svc.Send(ctx, bob, alice, "two")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, alice, bob)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	read := f.out.to(bob, models.EventMessageSeen)
	require.Len(t, read, 1)
	require.Equal(t, ReadNotice{By: alice}, read[0].payload)

	msg, err := f.svc.MarkUnread(ctx, alice, bob)
	require.NoError(t, err)
	require.Equal(t, latest.ID, msg.ID)
	require.False(t, msg.Seen)

	count, err := f.store.Messages().CountUnseen(ctx, bob, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	msg, err = f.svc.MarkUnread(ctx, carol, bob)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestDeleteForMeHidesOnlyForCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.Send(ctx, alice, bob, "secret")
	require.NoError(t, err)
	f.out.reset()

	_, err = f.svc.DeleteForMe(ctx, msg.ID, alice)
	require.NoError(t, err)
	require.Empty(t, f.out.sent)

	mine, err := f.svc.LoadConversation(ctx, alice, bob)
	require.NoError(t, err)
	require.Empty(t, mine)
	theirs, err := f.svc.LoadConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, theirs, 1)

	_, err = f.svc.DeleteForMe(ctx, "missing", alice)
	require.True(t, apperr.IsNotFound(err))
}

func TestDeleteForEveryoneIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.SendFile(ctx, FileInput{From: alice, To: bob, FileName: "a.png", Data: "AA=="})
	require.NoError(t, err)
	f.out.reset()

	first, err := f.svc.DeleteForEveryone(ctx, msg.ID, alice)
	require.NoError(t, err)
	require.Equal(t, models.Tombstone, first.Text)
	require.True(t, first.DeletedForEveryone)
	require.Nil(t, first.File)
	require.Len(t, f.out.to(alice, models.EventMessageDeletedEveryone), 1)
	require.Len(t, f.out.to(bob, models.EventMessageDeletedEveryone), 1)

	second, err := f.svc.DeleteForEveryone(ctx, msg.ID, "")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, f.out.to(bob, models.EventMessageDeletedEveryone), 1)

	conv, err := f.svc.LoadConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, conv, 1)
	require.Equal(t, models.Tombstone, conv[0].Text)
	require.True(t, conv[0].DeletedForEveryone)
}

func TestDeleteForEveryoneRequiresAuthor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.Send(ctx, alice, bob, "hi")
	require.NoError(t, err)

	_, err = f.svc.DeleteForEveryone(ctx, msg.ID, bob)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.DeleteForEveryone(ctx, "missing", "")
	require.True(t, apperr.IsNotFound(err))
}

func TestDeleteForEveryoneInGroupNotifiesMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := &models.Group{Name: "team", Members: []string{alice, bob, carol}, CreatedBy: alice}
	require.NoError(t, f.store.Groups().Create(ctx, g))
	msg, err := f.svc.SendGroupMessage(ctx, g.ID, alice, "oops")
	require.NoError(t, err)
	f.out.reset()

	_, err = f.svc.DeleteForEveryone(ctx, msg.ID, alice)
	require.NoError(t, err)
	for _, m := range g.Members {
		require.Len(t, f.out.to(m, models.EventMessageDeletedEveryone), 1)
	}
	conv, err := f.svc.LoadGroupConversation(ctx, g.ID, bob)
	require.NoError(t, err)
	require.Empty(t, conv)
}

func TestClearChats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Send(ctx, alice, bob, "1")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, carol, alice, "2")
	require.NoError(t, err)

	n, err := f.svc.ClearChats(ctx, alice, []string{bob}, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	deleted, err := f.svc.List(ctx, alice, models.ListDeletedChats)
	require.NoError(t, err)
	require.Equal(t, []string{bob}, deleted)

	n, err = f.svc.ClearChats(ctx, alice, nil, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	deleted, err = f.svc.List(ctx, alice, models.ListDeletedChats)
	require.NoError(t, err)
	require.Empty(t, deleted)
}
