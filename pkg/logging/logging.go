// Package logging provides the shared application logger.
package logging

import (
	"os"

	clog "github.com/charmbracelet/log"
)

// Logger is the shared logger for CLI and worker output. It prints to stderr
// with timestamps enabled.
var Logger = clog.NewWithOptions(os.Stderr, clog.Options{
	ReportTimestamp: true,
})

// SetVerbose lowers the log level to debug.
func SetVerbose(verbose bool) {
	if verbose {
		Logger.SetLevel(clog.DebugLevel)
	}
}
