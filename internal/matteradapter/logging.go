package matteradapter

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// zerologLeveledLogger implements pion/logging.LeveledLogger against
// a zerolog.Logger, so the adapter speaks the upstream Matter
// library's own logging contract while still routing through this
// process's configured sink.
type zerologLeveledLogger struct {
	log zerolog.Logger
}

// NewLeveledLogger returns a logging.LeveledLogger backed by log.
func NewLeveledLogger(log *zerolog.Logger) logging.LeveledLogger {
	return &zerologLeveledLogger{log: *log}
}

func (z *zerologLeveledLogger) Trace(msg string)                          { z.log.Trace().Msg(msg) }
func (z *zerologLeveledLogger) Tracef(format string, args ...interface{}) { z.log.Trace().Msg(fmt.Sprintf(format, args...)) }
func (z *zerologLeveledLogger) Debug(msg string)                          { z.log.Debug().Msg(msg) }
func (z *zerologLeveledLogger) Debugf(format string, args ...interface{}) { z.log.Debug().Msg(fmt.Sprintf(format, args...)) }
func (z *zerologLeveledLogger) Info(msg string)                           { z.log.Info().Msg(msg) }
func (z *zerologLeveledLogger) Infof(format string, args ...interface{})  { z.log.Info().Msg(fmt.Sprintf(format, args...)) }
func (z *zerologLeveledLogger) Warn(msg string)                           { z.log.Warn().Msg(msg) }
func (z *zerologLeveledLogger) Warnf(format string, args ...interface{})  { z.log.Warn().Msg(fmt.Sprintf(format, args...)) }
func (z *zerologLeveledLogger) Error(msg string)                          { z.log.Error().Msg(msg) }
func (z *zerologLeveledLogger) Errorf(format string, args ...interface{}) { z.log.Error().Msg(fmt.Sprintf(format, args...)) }
