package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"solex/internal/api"
	"solex/internal/config"
	"solex/internal/engine"
	"solex/internal/net"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	configFile := flag.String("config", "", "Path to the yaml config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the matching engine and the transports in front of it.
	eng := engine.New(cfg.Engine)
	srv := net.New(cfg.TCP, eng)
	eng.SetReporter(srv)

	log.Info().
		Str("pair", cfg.Engine.BaseAsset.String()+"/"+cfg.Engine.QuoteAsset.String()).
		Bool("skip_self_match", cfg.Engine.SkipSelfMatch).
		Msg("starting exchange")

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return srv.Run(ctx)
	})
	if cfg.HTTP.Enabled {
		t.Go(func() error {
			return api.Run(ctx, api.New(eng), cfg.HTTP.Address)
		})
	}

	// Block until a signal arrives or either server fails.
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exchange stopped")
	}
	log.Info().Msg("exchange stopped")
}
