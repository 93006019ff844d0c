package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/rewards-bot/api"
	"github.com/warp/rewards-bot/config"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
	Seed string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with the status and reload endpoints, the JSON
message transport and the TwiML webhook. The directory is reloaded on the
configured interval until the process receives SIGINT or SIGTERM.

Example:
  rewards-bot serve --config rewards.yaml
  rewards-bot serve --store memory --seed testdata/fixture.yaml --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "HTTP port (overrides PORT)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "fixture to load at startup")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(func(c *config.Config) {
		if opts.Port != 0 {
			c.Port = opts.Port
		}
	})
	if err != nil {
		return err
	}
	log, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	a, err := newApp(parentCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error closing connections", "error", err)
		}
	}()

	if opts.Seed != "" {
		fx, err := LoadFixture(opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load fixture", err)
		}
		if err := fx.Apply(parentCtx, a.store); err != nil {
			return WrapExitError(ExitFailure, "failed to seed", err)
		}
	}

	scheduler := api.NewReloadScheduler(a.dir, a.engine, log)
	scheduler.Interval = cfg.ReloadInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(api.NewHandler(a.dir, a.engine, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr(), "store", cfg.StoreDriver, "identity_mode", string(cfg.IdentityMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitFailure, "server failed", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server forced to shutdown", err)
	}

	log.Info("server stopped")
	return nil
}
