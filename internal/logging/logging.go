// Package logging configures the process-wide logrus logger and attaches a
// per-request UUID so a request's log lines can be correlated end to end.
package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey int

const requestIDKey contextKey = 0

// Setup configures the standard logger's level and formatter. JSON output
// in production, a human-readable text formatter at debug level.
func Setup(level string) {
	if level == "debug" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// WithRequestID attaches a fresh request ID to ctx and returns it.
func WithRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, requestIDKey, id), id
}

// RequestIDFrom extracts the request ID previously attached by
// WithRequestID, or "" if none is present.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Entry returns a logrus.Entry tagged with ctx's request ID, if any.
func Entry(ctx context.Context) *logrus.Entry {
	if id := RequestIDFrom(ctx); id != "" {
		return logrus.WithField("request_id", id)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
