package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/gateway"
	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/plugin"
	"github.com/soyeahso/promptsmith/internal/plugin/export"
	"github.com/soyeahso/promptsmith/internal/session"
	"github.com/soyeahso/promptsmith/internal/store"
	"github.com/spf13/cobra"
)

const sweepInterval = time.Minute

func newServeCmd() *cobra.Command {
	var (
		port      int
		bind      string
		storeKind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if storeKind != "" {
				cfg.Session.Store = storeKind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// --log-level wins over the config file
			if logLevel == "" {
				log = logging.NewWithOptions(logging.Options{Level: cfg.Logging.Level, Style: cfg.Logging.ConsoleStyle})
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().StringVar(&storeKind, "store", "", "override session store (memory, sqlite, redis)")

	return cmd
}

// serve wires the archive, session registry, hooks, plugins and gateway,
// and runs until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	archive, err := store.FromConfig(ctx, cfg.Session, paths.Sessions, log)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	log.Info().Str("store", cfg.Session.Store).Msg("session store ready")

	registry := session.NewRegistry(session.Options{
		Archive: archive,
		Handler: gateway.HandlerOptions(cfg),
		Log:     log,
	})
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn().Err(err).Msg("closing session registry")
		}
	}()

	hookMgr := hooks.NewManager(log)
	if n := hookMgr.RegisterCommands(cfg.Hooks); n > 0 {
		log.Info().Int("count", n).Msg("command hooks registered")
	}

	plugins := plugin.NewRegistry(hookMgr, registry, log)
	if cfg.Export.Enabled {
		dir := cfg.Export.Dir
		if dir == "" {
			dir = filepath.Join(paths.Data, "prompts")
		}
		if err := plugins.Register(export.New(dir)); err != nil {
			return err
		}
	}
	if err := plugins.InitAll(ctx); err != nil {
		return err
	}
	defer plugins.CloseAll()

	srv := gateway.New(cfg, log,
		gateway.WithHooks(hookMgr),
		gateway.WithRegistry(registry),
	)

	idle := time.Duration(cfg.Session.IdleMinutes) * time.Minute
	go registry.RunSweeper(ctx, sweepInterval, idle)

	return srv.Start(ctx)
}
