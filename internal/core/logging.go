package core

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger intended to be used by all of the gateway's
// components, configured from the log options in cfg.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	var logWriter *os.File

	switch cfg.LogFilePath {
	case "":
		logWriter = os.Stdout
	default:
		var err error
		logWriter, err = os.OpenFile(cfg.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file %s: %w", cfg.LogFilePath, err)
		}
	}

	logLvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error parsing log level: %w", err)
	}

	return &logrus.Logger{
		Out: logWriter,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		},
		Hooks: make(logrus.LevelHooks),
		Level: logLvl,
	}, nil
}
