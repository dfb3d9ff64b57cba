// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup installs the global logger. Debug mode writes human-readable console
// lines; otherwise one JSON object per line goes to stderr.
func Setup(level string, debug bool) {
	logger := log.Logger{
		Level:  log.ParseLevel(level),
		Caller: 0,
	}
	if debug {
		logger.Level = log.DebugLevel
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    true,
			QuoteString:    true,
			EndWithMessage: true,
		}
	} else {
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	}
	log.DefaultLogger = logger
}
