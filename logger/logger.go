package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger.
var Log = logrus.New()

// Init configures the logger for JSON output. The level comes from LOG_LEVEL
// and defaults to info.
func Init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.JSONFormatter{})
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel changes the log level, ignoring values logrus does not recognise.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)
}
