// Package logger configures the structured logger shared by every component.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a JSON logger at the given level. An unknown level falls
// back to info. Output is discarded when ENV=test.
func NewLogger(level string) logrus.FieldLogger {
	logger := logrus.New()
	if os.Getenv("ENV") == "test" {
		logger.SetOutput(io.Discard)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyLevel: "level",
		},
	})

	return logger.WithField("service", "workouttracker")
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
