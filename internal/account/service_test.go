package account

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
	"github.com/xelth-com/eckchat/internal/utils"
)

type broadcast struct {
	event   string
	payload any
}

type outbox struct {
	mu   sync.Mutex
	sent []broadcast
}

func (o *outbox) Deliver(context.Context, string, string, any) int { return 0 }
func (o *outbox) DeliverToIdentity(context.Context, string, string, any) int {
	return 0
}
func (o *outbox) DeliverToIdentities(context.Context, []string, string, any) int {
	return 0
}
func (o *outbox) Broadcast(_ context.Context, event string, payload any, _ string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, broadcast{event, payload})
	return 1
}

type invalidations struct {
	mu  sync.Mutex
	ids []string
}

func (c *invalidations) Available() bool { return true }
func (c *invalidations) GetChats(context.Context, string) ([]models.ChatSummary, error) {
	return nil, nil
}
func (c *invalidations) SetChats(context.Context, string, []models.ChatSummary) error { return nil }
func (c *invalidations) GetGroupChats(context.Context, string) ([]models.GroupChatSummary, error) {
	return nil, nil
}
func (c *invalidations) SetGroupChats(context.Context, string, []models.GroupChatSummary) error {
	return nil
}
func (c *invalidations) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ids...)
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.New().Users(), &outbox{}, nil, "secret")

	sess, err := svc.Register(ctx, "+91 99900-01111", "Alice")
	require.NoError(t, err)
	require.Equal(t, "9990001111", sess.User.Phone)
	require.Equal(t, "Alice", sess.User.Name)
	phone, err := utils.ValidatePhoneToken(sess.Token, "secret")
	require.NoError(t, err)
	require.Equal(t, "9990001111", phone)

	_, err = svc.Register(ctx, "9990001111", "Again")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	sess, err = svc.Login(ctx, "919990001111")
	require.NoError(t, err)
	require.Equal(t, "Alice", sess.User.Name)

	_, err = svc.Login(ctx, "9990002222")
	require.True(t, apperr.IsNotFound(err))

	_, err = svc.Login(ctx, "abc")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestNoTokenWithoutSecret(t *testing.T) {
	svc := NewService(memstore.New().Users(), &outbox{}, nil, "")
	sess, err := svc.Register(context.Background(), "9990001111", "")
	require.NoError(t, err)
	require.Empty(t, sess.Token)
}

func TestUpdateProfileBroadcasts(t *testing.T) {
	ctx := context.Background()
	out := &outbox{}
	svc := NewService(memstore.New().Users(), out, nil, "")

	about := "busy"
	u, err := svc.UpdateProfile(ctx, "9990001111", models.ProfileUpdate{About: &about})
	require.NoError(t, err)
	require.Equal(t, "busy", u.About)

	photo := "https://cdn.example/p.png"
	_, err = svc.UpdateProfile(ctx, "9990001111", models.ProfileUpdate{Photo: &photo})
	require.NoError(t, err)
	u, err = svc.RemovePhoto(ctx, "9990001111")
	require.NoError(t, err)
	require.Empty(t, u.Photo)
	require.Equal(t, "busy", u.About)

	require.Len(t, out.sent, 3)
	require.Equal(t, models.EventProfileUpdated, out.sent[2].event)
	require.Equal(t, models.ProfileUpdated{Phone: "9990001111", About: "busy"}, out.sent[2].payload)

	p, err := svc.Profile(ctx, "9990009999")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestAddContactRefreshesEveryone(t *testing.T) {
	ctx := context.Background()
	out := &outbox{}
	chats := &invalidations{}
	svc := NewService(memstore.New().Users(), out, chats, "")

	_, err := svc.Register(ctx, "9990001111", "Alice")
	require.NoError(t, err)
	chats.ids = nil
	u, err := svc.AddContact(ctx, "9990002222", "Bob")
	require.NoError(t, err)
	require.Equal(t, "Bob", u.Name)

	require.ElementsMatch(t, []string{"9990001111", "9990002222"}, chats.ids)
	require.Equal(t, []broadcast{{models.EventRefreshChatList, nil}}, out.sent)

	contacts, err := svc.Contacts(ctx, "9990001111")
	require.NoError(t, err)
	require.Equal(t, []Contact{{Phone: "9990002222", Name: "Bob"}}, contacts)

	users, err := svc.Users(ctx, "9990003333")
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = svc.AddContact(ctx, "", "Nobody")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRegisterAndProfileChangesInvalidateChatLists(t *testing.T) {
	ctx := context.Background()
	chats := &invalidations{}
	svc := NewService(memstore.New().Users(), &outbox{}, chats, "")

	_, err := svc.Register(ctx, "9990001111", "Alice")
	require.NoError(t, err)
	require.Equal(t, []string{"9990001111"}, chats.ids)

	chats.ids = nil
	_, err = svc.Register(ctx, "9990002222", "Bob")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"9990001111", "9990002222"}, chats.ids)

	chats.ids = nil
	name := "Robert"
	_, err = svc.UpdateProfile(ctx, "9990002222", models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"9990001111", "9990002222"}, chats.ids)

	chats.ids = nil
	_, err = svc.Register(ctx, "9990002222", "Bob")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Empty(t, chats.ids)
}
