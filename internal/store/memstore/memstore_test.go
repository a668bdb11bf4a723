package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
	"github.com/xelth-com/eckchat/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	list, err := s.Users().UpdateList(ctx, "a", models.ListPinned, []string{"b"}, true)
	require.NoError(t, err)
	list[0] = "mutated"

	u, err := s.Users().FindByIdentity(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, u.Pinned)

	g := &models.Group{Name: "g", Members: []string{"a"}}
	require.NoError(t, s.Groups().Create(ctx, g))
	g.Members[0] = "mutated"
	got, err := s.Groups().FindByID(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.Members)
}
