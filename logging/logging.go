// Package logging wires up the process-wide logrus logger and the
// per-channel frame logger the protocol adapters publish through
// (§4.K).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide logger. level follows logrus's own
// vocabulary ("debug", "info", "warn", "error"); an unrecognised level
// falls back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
