// Package logger is the structured logging layer shared by every galleryzip
// component.
//
// It wraps zerolog behind the Logger interface. Console output is colored and
// goes to stderr so stdout stays free for archive paths and NDJSON task
// events. When LoggingConfig.File is set, JSON lines are also written to that
// file, rotated by lumberjack according to MaxSize, MaxBackups and MaxAge.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("task_id", task.ID)
//	log.InfoWithFields("Scroll finished", map[string]interface{}{
//	    "reason":  outcome.Reason.String(),
//	    "matched": outcome.State.MatchedCount,
//	})
//
// Tests use NewTestLogger to capture entries, or NewNopLogger to discard them.
package logger
