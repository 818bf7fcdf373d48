package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogger configures the process-wide logrus instance from LOG_LEVEL.
func SetupLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	level, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = log.InfoLevel
	}

	log.SetLevel(level)
}
