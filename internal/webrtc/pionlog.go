package webrtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// loggerFactory hands pion's internal loggers a zerolog backend. pion is
// chatty at debug level, so its debug and trace output is logged at trace.
type loggerFactory struct {
	base zerolog.Logger
}

// NewLoggerFactory returns a pion LoggerFactory writing to base.
func NewLoggerFactory(base zerolog.Logger) logging.LoggerFactory {
	return &loggerFactory{base: base}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{
		log: f.base.With().Str("component", "pion").Str("scope", scope).Logger(),
	}
}

type leveledLogger struct {
	log zerolog.Logger
}

func (l *leveledLogger) Trace(msg string)                  { l.log.Trace().Msg(msg) }
func (l *leveledLogger) Tracef(format string, args ...any) { l.log.Trace().Msgf(format, args...) }
func (l *leveledLogger) Debug(msg string)                  { l.log.Trace().Msg(msg) }
func (l *leveledLogger) Debugf(format string, args ...any) { l.log.Trace().Msgf(format, args...) }
func (l *leveledLogger) Info(msg string)                   { l.log.Debug().Msg(msg) }
func (l *leveledLogger) Infof(format string, args ...any)  { l.log.Debug().Msgf(format, args...) }
func (l *leveledLogger) Warn(msg string)                   { l.log.Warn().Msg(msg) }
func (l *leveledLogger) Warnf(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l *leveledLogger) Error(msg string)                  { l.log.Error().Msg(msg) }
func (l *leveledLogger) Errorf(format string, args ...any) { l.log.Error().Msgf(format, args...) }
