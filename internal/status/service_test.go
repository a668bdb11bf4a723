package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
)

const (
	alice = "9990001111"
	bob   = "9990002222"
	carol = "9990003333"
)

type broadcasts struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (b *broadcasts) Deliver(context.Context, string, string, any) int           { return 0 }
func (b *broadcasts) DeliverToIdentity(context.Context, string, string, any) int { return 0 }
func (b *broadcasts) DeliverToIdentities(context.Context, []string, string, any) int {
	return 0
}
func (b *broadcasts) Broadcast(_ context.Context, event string, payload any, _ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.data = append(b.data, payload)
	return 1
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memstore.Store, *broadcasts, *clock) {
	t.Helper()
	st := memstore.New()
	out := &broadcasts{}
	c := &clock{now: t0}
	svc := NewService(st, out, 0)
	svc.SetClock(c.Now)
	return svc, st, out, c
}

func TestPostSetsExpiryAndBroadcasts(t *testing.T) {
	svc, _, out, _ := newService(t)
	st, err := svc.Post(context.Background(), "+91 9990001111", "hello", "")
	require.NoError(t, err)
	require.Equal(t, alice, st.Phone)
	require.Equal(t, t0, st.CreatedAt)
	require.Equal(t, t0.Add(24*time.Hour), st.ExpiresAt)
	require.Equal(t, []string{models.EventStatusNew}, out.events)

	_, err = svc.Post(context.Background(), alice, "  ", "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Post(context.Background(), "", "x", "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestFeedDropsExpiredStatus(t *testing.T) {
	ctx := context.Background()
	svc, st, _, c := newService(t)
	_, err := svc.Post(ctx, alice, "today", "")
	require.NoError(t, err)

	feed, err := svc.Feed(ctx, bob)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	c.now = t0.Add(24*time.Hour + time.Second)
	feed, err = svc.Feed(ctx, bob)
	require.NoError(t, err)
	require.Empty(t, feed)

	remaining, err := st.Statuses().Active(ctx, t0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestFeedHonoursBlocksBothWays(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newService(t)
	_, err := st.Users().UpdateList(ctx, alice, models.ListBlocked, []string{bob}, true)
	require.NoError(t, err)
	_, err = st.Users().UpdateList(ctx, carol, models.ListBlocked, []string{alice}, true)
	require.NoError(t, err)

	for _, owner := range []string{alice, bob, carol} {
		_, err := svc.Post(ctx, owner, "from "+owner, "")
		require.NoError(t, err)
	}

	feed, err := svc.Feed(ctx, bob)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	for _, s := range feed {
		require.NotEqual(t, alice, s.Phone)
	}

	feed, err = svc.Feed(ctx, alice)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, alice, feed[0].Phone)
}

func TestViewUpsertsPerViewer(t *testing.T) {
	ctx := context.Background()
	svc, _, out, c := newService(t)
	posted, err := svc.Post(ctx, alice, "hi", "")
	require.NoError(t, err)

	c.now = t0.Add(time.Minute)
	_, err = svc.View(ctx, posted.ID, bob)
	require.NoError(t, err)
	c.now = t0.Add(2 * time.Minute)
	st, err := svc.View(ctx, posted.ID, bob)
	require.NoError(t, err)
	require.Len(t, st.Views, 1)
	require.Equal(t, t0.Add(2*time.Minute), st.Views[0].ViewedAt)

	_, err = svc.View(ctx, posted.ID, carol)
	require.NoError(t, err)
	views, err := svc.Views(ctx, posted.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	last := out.data[len(out.data)-1].(ViewedEvent)
	require.Equal(t, ViewedEvent{StatusID: posted.ID, By: carol, At: c.now}, last)

	_, err = svc.View(ctx, "missing", bob)
	require.True(t, apperr.IsNotFound(err))

	c.now = t0.Add(25 * time.Hour)
	_, err = svc.View(ctx, posted.ID, bob)
	require.True(t, apperr.IsNotFound(err))
}

func TestDeleteOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, out, _ := newService(t)
	posted, err := svc.Post(ctx, alice, "hi", "")
	require.NoError(t, err)

	err = svc.Delete(ctx, posted.ID, bob)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, posted.ID, alice))
	require.Equal(t, DeletedEvent{StatusID: posted.ID}, out.data[len(out.data)-1])

	err = svc.Delete(ctx, posted.ID, alice)
	require.True(t, apperr.IsNotFound(err))
}

func TestSweeperRemovesExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, st, _, c := newService(t)
	posted, err := svc.Post(ctx, alice, "hi", "")
	require.NoError(t, err)
	c.now = t0.Add(48 * time.Hour)

	done := make(chan struct{})
	go func() {
		NewSweeper(svc, 5*time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.Statuses().FindByID(context.Background(), posted.ID)
		return apperr.IsNotFound(err)
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
