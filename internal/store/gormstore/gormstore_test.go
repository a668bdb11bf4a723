package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/database"
	"github.com/xelth-com/eckchat/internal/store"
	"github.com/xelth-com/eckchat/internal/store/storetest"
	"github.com/xelth-com/eckchat/internal/testutil/testpg"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", true)
	require.NoError(t, err)
	s, err := open(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

func TestSQLitePluginRegistered(t *testing.T) {
	cfg := &config.Config{DatastoreType: config.DatastoreSQLite, SQLitePath: ":memory:"}
	cfg.Database.Alter = true

	require.NoError(t, store.Migrate(context.Background(), cfg))

	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close(context.Background())

	u, err := s.Users().Upsert(context.Background(), "9990001111", "Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)
}

func TestPostgres(t *testing.T) {
	dbCfg := testpg.StartPostgres(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		db, err := database.Connect(dbCfg)
		require.NoError(t, err)
		// Subtests share one server; start each from empty tables.
		require.NoError(t, db.Migrator().DropTable(allRows...))
		s, err := open(db)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}
