package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry so that component and proxy scoped loggers
// can be derived without re-threading fields through every call site.
type Logger struct {
	*logrus.Entry
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string
	Output string
	File   string
}

// New creates a new logger instance with the given configuration
func New(config Config) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	switch config.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	var output io.Writer
	switch config.Output {
	case "stderr":
		output = os.Stderr
	case "file":
		if config.File == "" {
			config.File = "proxy-pool.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		output = file
	default:
		output = os.Stdout
	}
	log.SetOutput(output)

	return &Logger{Entry: logrus.NewEntry(log)}, nil
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(log)}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

// WithError adds an error field to the logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// ProxyLogger creates a logger with proxy-specific fields
func (l *Logger) ProxyLogger(proxyID, endpoint string) *Logger {
	return l.WithFields(logrus.Fields{
		"proxy_id":  proxyID,
		"endpoint":  endpoint,
		"component": "proxy",
	})
}

// SelectionLogger creates a logger for the selection service
func (l *Logger) SelectionLogger() *Logger {
	return l.WithField("component", "selection")
}

// HealthCheckLogger creates a logger for health checking
func (l *Logger) HealthCheckLogger() *Logger {
	return l.WithField("component", "health_check")
}

// PoolLogger creates a logger for the pool application service
func (l *Logger) PoolLogger() *Logger {
	return l.WithField("component", "proxy_pool")
}

// APILogger creates a logger for the HTTP surface
func (l *Logger) APILogger() *Logger {
	return l.WithField("component", "api")
}
