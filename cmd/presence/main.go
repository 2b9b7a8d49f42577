// Command presence runs the presence engine against a host reached over NATS, with an HTTP API
// for administration and host events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/argus-labs/presence/pkg/micro"
	"github.com/argus-labs/presence/pkg/presence"
	displayconfig "github.com/argus-labs/presence/pkg/presence/config"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/presence/server"
	"github.com/argus-labs/presence/pkg/statsd"
	"github.com/argus-labs/presence/pkg/storage"
	"github.com/argus-labs/presence/pkg/telemetry"
	"github.com/argus-labs/presence/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("presence exited with an error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return eris.Wrap(err, "failed to load config")
	}

	tel, err := telemetry.New(telemetry.Options{
		ServiceName:        "presence",
		ResourceAttributes: map[string]string{"presence.subject_prefix": cfg.SubjectPrefix},
		SentryOptions: sentry.Options{
			Tags: map[string]string{"subject_prefix": cfg.SubjectPrefix},
		},
	})
	if err != nil {
		return eris.Wrap(err, "failed to initialize telemetry")
	}
	defer tel.RecoverAndFlush(true)
	logger := tel.GetLogger("main")

	if cfg.StatsdAddr != "" {
		if err := statsd.Init(cfg.StatsdAddr, []string{"subject_prefix:" + cfg.SubjectPrefix}); err != nil {
			return eris.Wrap(err, "failed to initialize statsd")
		}
	}

	display, err := displayconfig.Load(cfg.ConfigPath)
	if err != nil {
		return eris.Wrap(err, "failed to load display config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := dialPolicy{attempts: cfg.StartupAttempts, delay: cfg.StartupDelay}
	client, err := dial(ctx, policy, logger, "nats", func() (*micro.Client, error) {
		return micro.NewClient(micro.WithLogger(tel.GetLogger("client")))
	})
	if err != nil {
		return err
	}
	defer client.Close()

	cfg.Storage.Client = client
	store, err := dial(ctx, policy, logger, "storage", func() (storage.Store, error) {
		return storage.New(ctx, cfg.Storage)
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}()

	roster := host.NewRoster(cfg.MaxPlayers)
	engine, err := presence.New(display, roster, host.NewNATSSurface(client, cfg.SubjectPrefix), store,
		presence.WithTelemetry(tel))
	if err != nil {
		return eris.Wrap(err, "failed to create presence engine")
	}

	feed := host.NewFeed(roster, engine)
	sub, err := host.SubscribeFeed(client, cfg.SubjectPrefix, feed, tel.GetLogger("feed"))
	if err != nil {
		return err
	}

	srv, err := server.New(engine, feed,
		server.WithPort(cfg.HTTPPort),
		server.WithConfigPath(cfg.ConfigPath),
		server.WithLogger(tel.GetLogger("server")),
	)
	if err != nil {
		return eris.Wrap(err, "failed to create HTTP server")
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Str("subject_prefix", cfg.SubjectPrefix).
		Int("max_players", cfg.MaxPlayers).
		Msg("starting presence")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	runErr := g.Wait()
	if runErr != nil {
		tel.CaptureException(ctx, runErr, "operation", "run")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn().Err(err).Msg("failed to unsubscribe event feed")
	}
	if err := client.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to drain NATS client")
	}
	if err := statsd.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close statsd client")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown error")
	}
	logger.Info().Msg("presence shutdown complete")
	return runErr
}
