// Command matterbridged is the supervisor's process entrypoint: load
// configuration from the environment, initialize the lifecycle
// supervisor, run it, and block until a shutdown signal triggers
// cleanup.
package main

import (
	"context"
	"os"
	"time"

	"github.com/matterbridge-go/matterbridge/internal/bridge"
	"github.com/matterbridge-go/matterbridge/internal/config"
	"github.com/matterbridge-go/matterbridge/internal/logger"
)

func main() {
	opts := config.FromEnv()
	logger.Initialize(opts.LoggerLevel, opts.FileLogger)

	log := logger.Bridge()
	log.Info().Str("mode", string(opts.BridgeMode)).Msg("starting matterbridged")

	sup := bridge.Get(opts)

	ctx := context.Background()
	if err := sup.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("initialization failed")
		os.Exit(1)
	}

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start topology")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownGracePeriod+5*time.Second)
		defer cancel()
		_ = sup.Cleanup(shutdownCtx, bridge.CleanupShutdown)
		os.Exit(1)
	}

	log.Info().Msg("matterbridged running; waiting for shutdown signal")

	for sup.State() != bridge.StateTerminated {
		time.Sleep(500 * time.Millisecond)
	}

	log.Info().Msg("matterbridged terminated")
}
