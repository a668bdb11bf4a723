// Package testpg starts disposable PostgreSQL containers for tests.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xelth-com/eckchat/internal/config"
)

// StartPostgres starts a Postgres container and returns the database
// settings that reach it. Skips in -short mode or without a container
// runtime.
func StartPostgres(tb testing.TB) config.DatabaseConfig {
	tb.Helper()
	if testing.Short() {
		tb.Skip("container tests are skipped in -short mode")
	}
	if t, ok := tb.(*testing.T); ok {
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}

	ctx := context.Background()
	container, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eckchat"),
		postgres.WithUsername("eckchat"),
		postgres.WithPassword("eckchat"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}
	tb.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("get postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		tb.Fatalf("get postgres mapped port: %v", err)
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Port(),
		Username: "eckchat",
		Password: "eckchat",
		Database: "eckchat",
		Alter:    true,
	}
}
