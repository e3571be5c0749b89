// Package logging builds the structured stderr logger shared by briefship commands.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	Verbose bool
	JSON    bool
}

// New returns a logger writing to w. Verbose enables debug output; JSON
// switches to one JSON object per line so --json runs stay machine-readable.
func New(w io.Writer, opts Options) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "briefship",
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           log.InfoLevel,
	})
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
