package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
)

type joins struct {
	joined map[string][]string
	left   map[string][]string
}

func (j *joins) JoinRoom(id, room string)  { j.joined[room] = append(j.joined[room], id) }
func (j *joins) LeaveRoom(id, room string) { j.left[room] = append(j.left[room], id) }

type outbox struct{ got map[string][]string }

func (o *outbox) Deliver(_ context.Context, room, event string, _ any) int {
	o.got[room] = append(o.got[room], event)
	return 1
}
func (o *outbox) DeliverToIdentity(ctx context.Context, id, event string, p any) int {
	return o.Deliver(ctx, id, event, p)
}
func (o *outbox) DeliverToIdentities(ctx context.Context, ids []string, event string, p any) int {
	seen := map[string]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			o.Deliver(ctx, id, event, p)
		}
	}
	return len(seen)
}
func (o *outbox) Broadcast(context.Context, string, any, string) int { return 0 }

func newService(t *testing.T) (*Service, *joins, *outbox) {
	t.Helper()
	svc := NewService(memstore.New().Groups(), nil)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) })
	j := &joins{joined: map[string][]string{}, left: map[string][]string{}}
	o := &outbox{got: map[string][]string{}}
	svc.Attach(o, j)
	return svc, j, o
}

func TestCreateIncludesCreatorAndDedupes(t *testing.T) {
	ctx := context.Background()
	svc, j, o := newService(t)

	g, err := svc.Create(ctx, " team ", []string{"9990002222", "+91 999-000-2222", "9990003333"}, "9990001111")
	require.NoError(t, err)
	require.NotEmpty(t, g.ID)
	require.Equal(t, "team", g.Name)
	require.Equal(t, []string{"9990002222", "9990003333", "9990001111"}, g.Members)
	require.Equal(t, "9990001111", g.CreatedBy)

	require.ElementsMatch(t, g.Members, j.joined[g.ID])
	for _, m := range g.Members {
		require.Equal(t, []string{models.EventGroupCreated}, o.got[m])
	}

	rooms, err := svc.RoomsFor(ctx, "9990001111")
	require.NoError(t, err)
	require.Equal(t, []string{g.ID}, rooms)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Create(context.Background(), "", nil, "9990001111")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Create(context.Background(), "x", nil, "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreatorOnlyGroup(t *testing.T) {
	svc, _, _ := newService(t)
	g, err := svc.Create(context.Background(), "me", nil, "9990001111")
	require.NoError(t, err)
	require.Equal(t, []string{"9990001111"}, g.Members)
}

func TestMembershipChangesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, j, o := newService(t)
	g, err := svc.Create(ctx, "team", []string{"9990002222"}, "9990001111")
	require.NoError(t, err)

	g, err = svc.AddMembers(ctx, g.ID, []string{"9990003333", "9990002222"})
	require.NoError(t, err)
	require.Equal(t, []string{"9990002222", "9990001111", "9990003333"}, g.Members)
	g, err = svc.AddMembers(ctx, g.ID, []string{"9990003333"})
	require.NoError(t, err)
	require.Len(t, g.Members, 3)

	g, err = svc.RemoveMembers(ctx, g.ID, []string{"9990002222"})
	require.NoError(t, err)
	require.Equal(t, []string{"9990001111", "9990003333"}, g.Members)
	require.Equal(t, []string{"9990002222"}, j.left[g.ID])
	require.Contains(t, o.got["9990002222"], models.EventGroupUpdated)

	g, err = svc.RemoveMembers(ctx, g.ID, []string{"9990002222"})
	require.NoError(t, err)
	require.Len(t, g.Members, 2)

	_, err = svc.AddMembers(ctx, "missing", []string{"9990003333"})
	require.True(t, apperr.IsNotFound(err))

	rooms, err := svc.RoomsFor(ctx, "9990002222")
	require.NoError(t, err)
	require.Empty(t, rooms)
}

type dropped struct {
	cache.Noop
	ids [][]string
}

func (d *dropped) Available() bool { return true }
func (d *dropped) Invalidate(_ context.Context, ids ...string) error {
	d.ids = append(d.ids, ids)
	return nil
}

func TestMembershipChangesInvalidateChatLists(t *testing.T) {
	ctx := context.Background()
	chats := &dropped{}
	svc := NewService(memstore.New().Groups(), chats)

	g, err := svc.Create(ctx, "team", []string{"9990002222"}, "9990001111")
	require.NoError(t, err)
	require.Len(t, chats.ids, 1)
	require.ElementsMatch(t, []string{"9990001111", "9990002222"}, chats.ids[0])

	_, err = svc.AddMembers(ctx, g.ID, []string{"9990003333"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"9990001111", "9990002222", "9990003333"}, chats.ids[1])

	_, err = svc.RemoveMembers(ctx, g.ID, []string{"9990002222"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"9990001111", "9990002222", "9990003333"}, chats.ids[2])

	_, err = svc.AddMembers(ctx, "missing", []string{"9990004444"})
	require.True(t, apperr.IsNotFound(err))
	require.Len(t, chats.ids, 3)
}
