// Package logger configures the process-wide zerolog logger and hands
// out component-scoped child loggers.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger, configured by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger. pretty selects a human
// readable console writer (development); otherwise unix-timestamp
// JSON is emitted, matching what a supervising process manager
// expects to ingest.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "matterbridge").Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger { return &Log }

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Bridge returns the lifecycle supervisor's logger.
func Bridge() *zerolog.Logger { return component("bridge") }

// Plugin returns the plugin manager's logger.
func Plugin() *zerolog.Logger { return component("plugin") }

// Storage returns the KV store's logger.
func Storage() *zerolog.Logger { return component("storage") }

// Matter returns the Matter runtime adapter's logger.
func Matter() *zerolog.Logger { return component("matter") }

// Topology returns the commissioning topology builder's logger.
func Topology() *zerolog.Logger { return component("topology") }

// Fanout returns the attribute subscription fan-out's logger.
func Fanout() *zerolog.Logger { return component("fanout") }

// Frontend returns the outbound notifier's logger.
func Frontend() *zerolog.Logger { return component("frontend") }
