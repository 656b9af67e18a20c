// Package main provides the beacon relay daemon entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/beacon/internal/config"
	"github.com/thebtf/beacon/internal/relay"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "Listen port (default: configured relay port)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port != 0 {
		cfg.RelayPort = *port
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.BaseURL == "" {
		log.Warn().Str("path", config.SettingsPath()).Msg("No base URL configured, sync requests will fail until one is set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down relay")
		cancel()
	}()

	service := relay.NewService(cfg, Version)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Start(groupCtx) })
	group.Go(func() error { return service.WatchSettings(groupCtx) })

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Relay exited with error")
	}
}
