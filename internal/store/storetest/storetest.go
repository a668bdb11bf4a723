// Package storetest holds the behaviour every store backend must share.
// Backend packages call Run from their tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

// Run exercises s through the store interfaces. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("statuses", func(t *testing.T) { testStatuses(t, newStore(t)) })
	t.Run("callLogs", func(t *testing.T) { testCallLogs(t, newStore(t)) })
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()

	_, err := users.FindByIdentity(ctx, "9990001111")
	require.True(t, apperr.IsNotFound(err))

	u, err := users.Upsert(ctx, "9990001111", "Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)

	// An empty name leaves the stored one alone.
	u, err = users.Upsert(ctx, "9990001111", "")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)

	about := "busy"
	u, err = users.UpdateProfile(ctx, "9990001111", models.ProfileUpdate{About: &about})
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)
	require.Equal(t, "busy", u.About)

	list, err := users.UpdateList(ctx, "9990001111", models.ListBlocked, []string{"9990002222", "9990002222"}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"9990002222"}, list)
	list, err = users.UpdateList(ctx, "9990001111", models.ListBlocked, []string{"9990003333"}, true)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"9990002222", "9990003333"}, list)
	list, err = users.UpdateList(ctx, "9990001111", models.ListBlocked, []string{"9990002222"}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"9990003333"}, list)

	_, err = users.UpdateList(ctx, "9990001111", models.ChatList("bogus"), nil, true)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	seen := base.Add(time.Hour)
	require.NoError(t, users.SetPresence(ctx, "9990001111", false, &seen))
	require.NoError(t, users.SetPresence(ctx, "9990002222", true, nil))

	got, err := users.FindByIdentity(ctx, "9990001111")
	require.NoError(t, err)
	require.False(t, got.Online)
	require.True(t, seen.Equal(*got.LastSeen))
	require.True(t, got.HasBlocked("9990003333"))

	many, err := users.FindMany(ctx, []string{"9990001111", "9990002222", "0000000000"})
	require.NoError(t, err)
	require.Len(t, many, 2)

	all, err := users.List(ctx, []string{"9990001111"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "9990002222", all[0].Phone)
	require.True(t, all[0].Online)

	require.NoError(t, users.ClearList(ctx, "9990001111", models.ListBlocked))
	got, err = users.FindByIdentity(ctx, "9990001111")
	require.NoError(t, err)
	require.Empty(t, got.Blocked)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	msgs := s.Messages()

	var created []models.Message
	for i, m := range []models.Message{
		{From: "b", To: "a", Text: "one", Delivered: true},
		{From: "b", To: "a", Text: "two", Delivered: true},
		{From: "a", To: "b", Text: "mine", Delivered: true, File: &models.File{FileName: "x.png", MimeType: "image/png", FileType: models.FileTypeMedia}},
		{From: "a", To: "c", Text: "elsewhere", Delivered: true},
	} {
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, msgs.Create(ctx, &m))
		require.NotEmpty(t, m.ID)
		created = append(created, m)
	}

	found, err := msgs.FindByID(ctx, created[2].ID)
	require.NoError(t, err)
	require.NotNil(t, found.File)
	require.Equal(t, "x.png", found.File.FileName)
	require.Empty(t, found.DeletedFor)

	_, err = msgs.FindByID(ctx, "missing")
	require.True(t, apperr.IsNotFound(err))

	conv, err := msgs.Conversation(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, conv, 3)
	require.Equal(t, []string{"one", "two", "mine"}, []string{conv[0].Text, conv[1].Text, conv[2].Text})

	n, err := msgs.CountUnseen(ctx, "b", "a")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = msgs.MarkSeen(ctx, store.SeenFilter{From: "b", To: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	n, err = msgs.MarkSeen(ctx, store.SeenFilter{From: "b", To: "a"})
	require.NoError(t, err)
	require.Zero(t, n)

	mine, err := msgs.FindByID(ctx, created[2].ID)
	require.NoError(t, err)
	require.False(t, mine.Seen)

	last, err := msgs.MarkLatestUnseen(ctx, store.SeenFilter{From: "b", To: "a", SkipDeleted: true})
	require.NoError(t, err)
	require.Equal(t, "two", last.Text)
	n, err = msgs.CountUnseen(ctx, "b", "a")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	none, err := msgs.MarkLatestUnseen(ctx, store.SeenFilter{From: "z", To: "a"})
	require.NoError(t, err)
	require.Nil(t, none)

	hidden, err := msgs.AddDeletedFor(ctx, created[1].ID, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, hidden.DeletedFor)
	hidden, err = msgs.AddDeletedFor(ctx, created[1].ID, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, hidden.DeletedFor)

	n, err = msgs.CountUnseen(ctx, "b", "a")
	require.NoError(t, err)
	require.Zero(t, n)

	ts, err := msgs.Tombstone(ctx, created[2].ID)
	require.NoError(t, err)
	require.Equal(t, models.Tombstone, ts.Text)
	require.True(t, ts.DeletedForEveryone)
	require.Nil(t, ts.File)

	latest, err := msgs.Latest(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "one", latest.Text)
	latest, err = msgs.Latest(ctx, "b", "a")
	require.NoError(t, err)
	require.Equal(t, "two", latest.Text)

	removed, err := msgs.DeleteForIdentity(ctx, "a", []string{"b"})
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)
	conv, err = msgs.Conversation(ctx, "a", "c")
	require.NoError(t, err)
	require.Len(t, conv, 1)

	g1 := models.Message{From: "a", GroupID: "g1", Text: "hey all", CreatedAt: base}
	g2 := models.Message{From: "b", GroupID: "g1", Text: "gone", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, msgs.Create(ctx, &g1))
	require.NoError(t, msgs.Create(ctx, &g2))
	_, err = msgs.Tombstone(ctx, g2.ID)
	require.NoError(t, err)

	gconv, err := msgs.GroupConversation(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, gconv, 1)
	glatest, err := msgs.LatestInGroup(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "hey all", glatest.Text)
	n, err = msgs.CountGroupUnseen(ctx, "g1", "a")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Group messages never leak into personal chats.
	conv, err = msgs.Conversation(ctx, "a", "")
	require.NoError(t, err)
	require.Empty(t, conv)
}

func testGroups(t *testing.T, s store.Store) {
	ctx := context.Background()
	groups := s.Groups()

	g := &models.Group{Name: "team", Members: []string{"a", "b"}, CreatedBy: "a", CreatedAt: base}
	require.NoError(t, groups.Create(ctx, g))
	require.NotEmpty(t, g.ID)
	newer := &models.Group{Name: "later", Members: []string{"c"}, CreatedBy: "c", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, groups.Create(ctx, newer))

	got, err := groups.AddMembers(ctx, g.ID, []string{"b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, got.Members)

	got, err = groups.RemoveMembers(ctx, g.ID, []string{"b", "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, got.Members)

	forC, err := groups.ForMember(ctx, "c")
	require.NoError(t, err)
	require.Len(t, forC, 2)
	require.Equal(t, "later", forC[0].Name)

	_, err = groups.FindByID(ctx, "missing")
	require.True(t, apperr.IsNotFound(err))
	_, err = groups.AddMembers(ctx, "missing", []string{"a"})
	require.True(t, apperr.IsNotFound(err))
}

func testStatuses(t *testing.T, s store.Store) {
	ctx := context.Background()
	statuses := s.Statuses()

	st := &models.Status{Phone: "a", Text: "hi", CreatedAt: base, ExpiresAt: base.Add(models.DefaultStatusTTL)}
	require.NoError(t, statuses.Create(ctx, st))
	other := &models.Status{Phone: "b", Text: "yo", CreatedAt: base.Add(time.Hour), ExpiresAt: base.Add(time.Hour + models.DefaultStatusTTL)}
	require.NoError(t, statuses.Create(ctx, other))

	_, err := statuses.RecordView(ctx, st.ID, "b", base.Add(time.Minute))
	require.NoError(t, err)
	viewed, err := statuses.RecordView(ctx, st.ID, "b", base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, viewed.Views, 1)
	require.True(t, base.Add(2*time.Minute).Equal(viewed.Views[0].ViewedAt))

	_, err = statuses.RecordView(ctx, "missing", "b", base)
	require.True(t, apperr.IsNotFound(err))

	active, err := statuses.Active(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "yo", active[0].Text)

	active, err = statuses.Active(ctx, base.Add(models.DefaultStatusTTL+time.Second))
	require.NoError(t, err)
	require.Len(t, active, 1)

	n, err := statuses.DeleteExpired(ctx, base.Add(models.DefaultStatusTTL))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = statuses.FindByID(ctx, st.ID)
	require.True(t, apperr.IsNotFound(err))

	require.NoError(t, statuses.Delete(ctx, other.ID))
	require.True(t, apperr.IsNotFound(statuses.Delete(ctx, other.ID)))
}

func testCallLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	calls := s.CallLogs()
	for i := 0; i < 3; i++ {
		c := &models.CallLog{From: "a", To: "b", Type: models.CallVoice, Status: models.CallEnded, Duration: i, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, calls.Create(ctx, c))
	}
	require.NoError(t, calls.Create(ctx, &models.CallLog{From: "c", To: "d", CreatedAt: base}))

	got, err := calls.ForIdentity(ctx, "b", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2, got[0].Duration)
	require.Equal(t, 1, got[1].Duration)
}
