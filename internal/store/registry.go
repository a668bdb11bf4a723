package store

import (
	"context"
	"fmt"

	"github.com/xelth-com/eckchat/internal/config"
)

// Loader creates a Store from config.
type Loader func(ctx context.Context, cfg *config.Config) (Store, error)

// Migrator prepares a backend's schema.
type Migrator func(ctx context.Context, cfg *config.Config) error

// Plugin represents a store backend.
type Plugin struct {
	Name     string
	Loader   Loader
	Migrator Migrator
}

var plugins []Plugin

// Register adds a store plugin. Backends call it from init.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the named plugin.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown datastore %q; valid: %v", name, Names())
}

// Open loads the backend named by cfg.DatastoreType and wraps it with
// latency metrics when enabled.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	p, err := Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	s, err := p.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s datastore: %w", p.Name, err)
	}
	if cfg.MetricsEnabled {
		s = Instrument(s)
	}
	return s, nil
}

// Migrate runs the schema migration of the backend named by
// cfg.DatastoreType. Backends without a migrator are a no-op.
func Migrate(ctx context.Context, cfg *config.Config) error {
	p, err := Select(cfg.DatastoreType)
	if err != nil {
		return err
	}
	if p.Migrator == nil {
		return nil
	}
	return p.Migrator(ctx, cfg)
}
