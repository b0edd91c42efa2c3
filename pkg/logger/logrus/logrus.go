package logrus

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/raykavin/backsweep/pkg/logger"
)

// LogrusAdapter exposes a logrus entry through logger.Logger
type LogrusAdapter struct {
	*logrus.Entry
}

var _ logger.Logger = (*LogrusAdapter)(nil)

// New creates a logrus backed logger. JSON selects the JSON formatter, otherwise text.
func New(level string, json bool, out io.Writer) (*LogrusAdapter, error) {
	base := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	base.SetOutput(out)

	if json {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		base.SetLevel(parsed)
	}

	return &LogrusAdapter{logrus.NewEntry(base)}, nil
}

// WithField implements logger.Logger.
func (l *LogrusAdapter) WithField(key string, value any) logger.Logger {
	return &LogrusAdapter{l.Entry.WithField(key, value)}
}

// WithFields implements logger.Logger.
func (l *LogrusAdapter) WithFields(fields map[string]any) logger.Logger {
	return &LogrusAdapter{l.Entry.WithFields(fields)}
}

// WithError implements logger.Logger.
func (l *LogrusAdapter) WithError(err error) logger.Logger {
	return &LogrusAdapter{l.Entry.WithError(err)}
}

// SetLevel implements logger.Logger. The level is shared by every entry of the same base logger.
func (l *LogrusAdapter) SetLevel(level logger.Level) {
	if level == logger.Disabled {
		l.Entry.Logger.SetOutput(io.Discard)
		return
	}
	l.Entry.Logger.SetLevel(toLogrusLevel(level))
}

// GetLevel implements logger.Logger.
func (l *LogrusAdapter) GetLevel() logger.Level {
	switch l.Entry.Logger.GetLevel() {
	case logrus.TraceLevel:
		return logger.TraceLevel
	case logrus.DebugLevel:
		return logger.DebugLevel
	case logrus.InfoLevel:
		return logger.InfoLevel
	case logrus.WarnLevel:
		return logger.WarnLevel
	case logrus.ErrorLevel:
		return logger.ErrorLevel
	case logrus.FatalLevel:
		return logger.FatalLevel
	case logrus.PanicLevel:
		return logger.PanicLevel
	default:
		return logger.NoLevel
	}
}

func toLogrusLevel(level logger.Level) logrus.Level {
	switch level {
	case logger.TraceLevel:
		return logrus.TraceLevel
	case logger.DebugLevel:
		return logrus.DebugLevel
	case logger.WarnLevel:
		return logrus.WarnLevel
	case logger.ErrorLevel:
		return logrus.ErrorLevel
	case logger.FatalLevel:
		return logrus.FatalLevel
	case logger.PanicLevel:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
