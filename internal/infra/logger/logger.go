// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the application logger. Production and staging log JSON; other
// environments get human-readable text.
func New(level, environment string) *logrus.Logger {
	return newWithOutput(os.Stdout, level, environment)
}

func newWithOutput(out io.Writer, level, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	// Set Log Level
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", level, err)
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(parsed)
	}

	// Set Log Formatter
	switch strings.ToLower(environment) {
	case "production", "staging":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.Debugf("Log level set to: %s", log.GetLevel().String())
	return log
}

// Component returns an entry tagged with the component name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
