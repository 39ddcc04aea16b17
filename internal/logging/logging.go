package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logrus standard logger, so component loggers taken from
// logrus.WithField(...).Logger share its output and formatter.
var Logger = logrus.StandardLogger()

func init() {
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.JSONFormatter{})
	Logger.SetLevel(logrus.InfoLevel)
}

// SetLevel parses level and applies it to Logger, falling back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.Warnf("invalid log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}
