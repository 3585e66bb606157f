// Command walkerd serves the WasteLink walkers for development and testing.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wastelink/internal/auth"
	"wastelink/internal/backend"
	"wastelink/internal/buildinfo"
	"wastelink/internal/config"
	"wastelink/internal/fixture"
	"wastelink/internal/logging"
	"wastelink/internal/metrics"
	"wastelink/internal/notify"
)

func main() {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "walkerd",
		Short:         "Serve the WasteLink walkers over HTTP and WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default ./wastelink.yaml)")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString("walkerd: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	metrics.RegisterDefault()

	b, err := openBackend(ctx, cfg.Server, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	var broker notify.EventBroker = notify.NewBroker()
	if cfg.Server.RedisURL != "" {
		rb, err := notify.NewRedisBroker(cfg.Server.RedisURL)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = rb.Ping(pctx)
			cancel()
		}
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
		} else {
			defer func() { _ = rb.Close() }()
			broker = rb
		}
	}

	srv := fixture.NewServer(b, auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.Secret), broker, log)

	if cfg.Notify.WebhookURL != "" {
		hook := notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, cfg.Notify.WebhookMaxAttempts, log)
		hook.Start()
		defer hook.Close()
		rctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go notify.Relay(rctx, broker, fixture.EventsTopic, hook)
	}

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		info := buildinfo.Info()
		log.Info("walkerd listening", zap.String("addr", cfg.Server.Addr), zap.String("version", info["version"]), zap.String("auth", cfg.Auth.Mode))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(sctx)
}

// openBackend picks Postgres when a database URL is configured, otherwise the
// in-memory backend. The memory backend is always seeded; Postgres only when a
// seed file is named.
func openBackend(ctx context.Context, sc config.ServerConfig, log *zap.Logger) (backend.Backend, error) {
	var b backend.Backend
	seedPath := sc.SeedFile
	if sc.DatabaseURL == "" {
		b = backend.NewMemory()
	} else {
		pg, err := backend.NewPostgres(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		b = pg
		if seedPath == "" {
			return b, nil
		}
	}
	seed, err := backend.LoadSeed(seedPath)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := seed.Apply(ctx, b); err != nil {
		_ = b.Close()
		return nil, err
	}
	log.Info("backend seeded", zap.Int("requests", len(seed.Requests)), zap.Int("tasks", len(seed.Tasks)), zap.Int("collectors", len(seed.Collectors)))
	return b, nil
}
