package config

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger. verbose forces debug.
func SetupLogging(l Logging, verbose bool) {
	level, err := logrus.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(l.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
