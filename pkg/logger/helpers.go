package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

// LogDownload logs the outcome of one image download
func LogDownload(l Logger, file, url string, size int64, d time.Duration, err error) {
	fields := map[string]interface{}{
		"file":     file,
		"url":      url,
		"duration": d,
	}
	if err != nil {
		l.WithError(err).WarnWithFields("Image download failed", fields)
		return
	}
	fields["size"] = size
	l.DebugWithFields("Image downloaded", fields)
}

// LogScrollTick logs one convergence loop tick at debug level
func LogScrollTick(l Logger, phase string, scrolled, height, matched int, elapsed time.Duration) {
	l.DebugWithFields("Scroll tick", map[string]interface{}{
		"phase":    phase,
		"scrolled": scrolled,
		"height":   height,
		"matched":  matched,
		"elapsed":  elapsed,
	})
}

// LogTaskComplete logs the completion signal of one crawl task
func LogTaskComplete(l Logger, url, status, archive string, err error) {
	fields := map[string]interface{}{
		"url":    url,
		"status": status,
	}
	if archive != "" {
		fields["archive"] = archive
	}
	if err != nil {
		l.WithError(err).ErrorWithFields("Task failed", fields)
		return
	}
	l.InfoWithFields("Task complete", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	l.WithField("component", component).InfoWithFields("Component started", settings)
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component, reason string) {
	l.InfoWithFields("Component stopped", map[string]interface{}{
		"component": component,
		"reason":    reason,
	})
}
