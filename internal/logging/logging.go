// Package logging builds the process logger handed to every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
)

// New returns a logrus logger configured from cfg. verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) *logrus.Logger {
	return NewWithWriter(os.Stderr, cfg, verbose)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.Out = w

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{DisableTimestamp: !cfg.IncludeTimestamps})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    cfg.IncludeTimestamps,
			DisableTimestamp: !cfg.IncludeTimestamps,
			PadLevelText:     true,
		})
	}
	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

// Component scopes a logger to a named component.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		l = Discard()
	}
	return l.WithField("component", name)
}
