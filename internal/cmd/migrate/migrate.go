package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/store"

	// Import store backends to trigger init() registration of their migrators.
	_ "github.com/xelth-com/eckchat/internal/store/gormstore"
	_ "github.com/xelth-com/eckchat/internal/store/memstore"
	_ "github.com/xelth-com/eckchat/internal/store/mongostore"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the datastore schema and indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "datastore",
				Usage: "Store backend postgres|sqlite|mongo (overrides DATASTORE_TYPE)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.IsSet("datastore") {
				cfg.DatastoreType = cmd.String("datastore")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			log.Info("Running migrations...", "datastore", cfg.DatastoreType)
			if err := store.Migrate(ctx, cfg); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
