package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the single *logrus.Logger every package in zaichik logs
// through, configured the way boot/broker/main.go configured its logger
// in the teacher project: level from the environment, output to stdout.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stdout

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

// ForConn returns a per-connection logging entry pre-tagged with the
// connection's id, so every downstream log line carries it without
// every call site repeating WithField.
func ForConn(logger *logrus.Logger, connID string) *logrus.Entry {
	return logger.WithField("conn_id", connID)
}
