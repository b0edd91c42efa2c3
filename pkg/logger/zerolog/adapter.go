package zerolog

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/raykavin/backsweep/pkg/logger"
)

// ZerologAdapter exposes a zerolog logger through logger.Logger
type ZerologAdapter struct {
	log zerolog.Logger
}

var _ logger.Logger = (*ZerologAdapter)(nil)

// NewAdapter wraps an existing zerolog logger
func NewAdapter(log *zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{log: *log}
}

// levelPairs maps the shared levels onto zerolog's
var levelPairs = []struct {
	level logger.Level
	zl    zerolog.Level
}{
	{logger.Disabled, zerolog.Disabled},
	{logger.NoLevel, zerolog.NoLevel},
	{logger.TraceLevel, zerolog.TraceLevel},
	{logger.DebugLevel, zerolog.DebugLevel},
	{logger.InfoLevel, zerolog.InfoLevel},
	{logger.WarnLevel, zerolog.WarnLevel},
	{logger.ErrorLevel, zerolog.ErrorLevel},
	{logger.FatalLevel, zerolog.FatalLevel},
	{logger.PanicLevel, zerolog.PanicLevel},
}

func toLevel(zl zerolog.Level) logger.Level {
	for _, pair := range levelPairs {
		if pair.zl == zl {
			return pair.level
		}
	}
	return logger.NoLevel
}

func toZerologLevel(level logger.Level) zerolog.Level {
	for _, pair := range levelPairs {
		if pair.level == level {
			return pair.zl
		}
	}
	return zerolog.NoLevel
}

// event starts a message. Fatal and panic events keep zerolog's exit and panic
// behaviour; the caller frame stays the adapter method that calls Msg.
func (z *ZerologAdapter) event(level zerolog.Level) *zerolog.Event {
	switch level {
	case zerolog.FatalLevel:
		return z.log.Fatal()
	case zerolog.PanicLevel:
		return z.log.Panic()
	default:
		return z.log.WithLevel(level)
	}
}

func (z *ZerologAdapter) derive(ctx zerolog.Context) logger.Logger {
	return &ZerologAdapter{log: ctx.Logger()}
}

// GetLevel implements logger.Logger.
func (z *ZerologAdapter) GetLevel() logger.Level { return toLevel(z.log.GetLevel()) }

// SetLevel implements logger.Logger. Loggers derived earlier keep their level.
func (z *ZerologAdapter) SetLevel(level logger.Level) {
	z.log = z.log.Level(toZerologLevel(level))
}

// WithError implements logger.Logger.
func (z *ZerologAdapter) WithError(err error) logger.Logger {
	return z.derive(z.log.With().Err(err))
}

// WithField implements logger.Logger.
func (z *ZerologAdapter) WithField(key string, value any) logger.Logger {
	return z.derive(z.log.With().Interface(key, value))
}

// WithFields implements logger.Logger.
func (z *ZerologAdapter) WithFields(fields map[string]any) logger.Logger {
	return z.derive(z.log.With().Fields(fields))
}

func (z *ZerologAdapter) Print(args ...any) { z.event(zerolog.DebugLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Trace(args ...any) { z.event(zerolog.TraceLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Debug(args ...any) { z.event(zerolog.DebugLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Info(args ...any) { z.event(zerolog.InfoLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Warn(args ...any) { z.event(zerolog.WarnLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Error(args ...any) { z.event(zerolog.ErrorLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Fatal(args ...any) { z.event(zerolog.FatalLevel).Msg(fmt.Sprint(args...)) }
func (z *ZerologAdapter) Panic(args ...any) { z.event(zerolog.PanicLevel).Msg(fmt.Sprint(args...)) }

func (z *ZerologAdapter) Printf(format string, args ...any) {
	z.event(zerolog.DebugLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Tracef(format string, args ...any) {
	z.event(zerolog.TraceLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Debugf(format string, args ...any) {
	z.event(zerolog.DebugLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Infof(format string, args ...any) {
	z.event(zerolog.InfoLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Warnf(format string, args ...any) {
	z.event(zerolog.WarnLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Errorf(format string, args ...any) {
	z.event(zerolog.ErrorLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Fatalf(format string, args ...any) {
	z.event(zerolog.FatalLevel).Msgf(format, args...)
}

func (z *ZerologAdapter) Panicf(format string, args ...any) {
	z.event(zerolog.PanicLevel).Msgf(format, args...)
}
