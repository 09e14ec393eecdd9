package internal

import (
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogger initializes the logger with optional file output and level.
func InitLogger(logfile, level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:   logfile == "",
		FullTimestamp: true,
		DisableQuote:  true,
		PadLevelText:  true,
	})
	if logfile != "" {
		file, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logrus.SetOutput(file)
		} else {
			logrus.Warn("Failed to open log file, logging to stderr")
		}
	}
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
