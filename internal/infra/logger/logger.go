// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/infra/config"
)

// Log is the process-wide logger. Components take an entry from Component.
var Log = logrus.New()

// Init applies level and format from configuration. Production and staging log JSON
// for collectors; anything else gets human-readable text.
func Init(cfg *config.AppConfig) {
	configure(Log, cfg, os.Stdout)
}

func configure(l *logrus.Logger, cfg *config.AppConfig, out io.Writer) {
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		l.SetLevel(logrus.InfoLevel)
		l.Warnf("Invalid log level '%s', defaulting to 'info'", cfg.LogLevel)
	} else {
		l.SetLevel(level)
	}

	if structured(cfg.Environment) {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	l.WithFields(logrus.Fields{"level": l.GetLevel().String(), "environment": cfg.Environment}).Debug("Logger configured")
}

func structured(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
