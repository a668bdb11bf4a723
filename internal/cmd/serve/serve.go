package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/xelth-com/eckchat/internal/app"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/store"

	// Import store backends to trigger init() registration
	_ "github.com/xelth-com/eckchat/internal/store/gormstore"
	_ "github.com/xelth-com/eckchat/internal/store/memstore"
	_ "github.com/xelth-com/eckchat/internal/store/mongostore"
)

const shutdownTimeout = 10 * time.Second

// Command returns the serve sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat HTTP and websocket server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "HTTP port (overrides PORT)",
			},
			&cli.StringFlag{
				Name:  "datastore",
				Usage: "Store backend memory|postgres|sqlite|mongo (overrides DATASTORE_TYPE)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.IsSet("port") {
				cfg.Port = cmd.String("port")
			}
			if cmd.IsSet("datastore") {
				cfg.DatastoreType = cmd.String("datastore")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// Backends bring their schema up to date when opened.
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn("close datastore", "err", err)
		}
	}()
	log.Info("Datastore ready", "type", cfg.DatastoreType)

	chats, err := cache.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := chats.(interface{ Close() error }); ok {
		defer c.Close()
	}
	log.Info("Chat list cache ready", "type", cfg.CacheType)

	a := app.New(st, chats, app.Options{
		JWTSecret:           cfg.JWTSecret,
		AllowedOrigins:      cfg.AllowedOrigins,
		SendBuffer:          cfg.SendBuffer,
		StatusTTL:           cfg.StatusTTL,
		StatusSweepInterval: cfg.StatusSweepInterval,
		MetricsEnabled:      cfg.MetricsEnabled,
	})
	if !cfg.AuthEnabled() {
		log.Warn("JWT_SECRET is empty: API and websocket are unauthenticated")
	}

	runCtx, stopApp := context.WithCancel(ctx)
	appDone := make(chan struct{})
	go func() {
		a.Run(runCtx)
		close(appDone)
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		stopApp()
		<-appDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "err", err)
	}
	stopApp()
	<-appDone
	log.Info("Server exited")
	return nil
}
