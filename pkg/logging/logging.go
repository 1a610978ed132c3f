// Package logging provides a small bridging interface between logrus and
// the rest of this module, so components depend on an interface rather
// than a concrete logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used throughout the gateway.
type Logger interface {
	logrus.FieldLogger
	Writer() *io.PipeWriter
}

// New wraps a *logrus.Logger as a Logger.
func New(l *logrus.Logger) Logger {
	return logrus.NewEntry(l)
}
