package util

import (
	"github.com/ledgercache/ledgercache/log"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals
var (
	// Version current version number
	Version = "undefined"
	// BuildTime build time of the binary
	BuildTime = "undefined"
)

// FatalOnError logs the error and terminates the application
func FatalOnError(message string, err error) {
	if err != nil {
		log.Log().Fatal(message, err)
	}
}

// LogOnError logs the message only if error is not nil
func LogOnError(message string, err error) {
	if err != nil {
		log.Log().Error(message, err)
	}
}

// LogOnErrorWithEntry logs the message with the passed entry only if error is not nil
func LogOnErrorWithEntry(logEntry *logrus.Entry, message string, err error) {
	if err != nil {
		logEntry.Error(message, err)
	}
}
