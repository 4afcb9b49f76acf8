// Package logging builds the process logger. Application and access logs
// both go through the same logrus instance.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stdout at the given level.
// format is "json" or "text"; anything else falls back to text.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stdout)
}

func NewWithOutput(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}
	return logger
}

// RequestLogger is chi's access-log middleware writing through logger.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger,
		NoColor: true,
	})
}

// FromRequest returns a logger entry tagged with the chi request id.
func FromRequest(logger logrus.FieldLogger, r *http.Request) logrus.FieldLogger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}
