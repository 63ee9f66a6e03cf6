package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus entry scoped to a single component. Components receive
// their logger from the composition root instead of logging through a
// package global.
type Logger struct {
	*logrus.Entry
}

// New builds a Logger writing to stdout with the given level and format.
// Unknown levels fall back to info, unknown formats to text.
func New(component, level, format string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Entry: base.WithField("component", component)}
}

// NewDefault builds a Logger configured from the LOG_LEVEL and LOG_FORMAT
// environment variables.
func NewDefault(component string) *Logger {
	return New(component, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}
