// Package logging provides structured logging for harness runs.
//
// The package wraps Go's log/slog to write JSON lines that can be filtered
// after a run, for example with jq, to follow one task definition or one
// plugin through the whole sequence.
//
// # Run Logs
//
// Each run writes {logDir}/harness.log. Logs of earlier runs are shifted to
// harness.log.1 (most recent), harness.log.2, and so on, up to the configured
// number of kept runs:
//
//	logger, err := logging.NewLogger(".snapharness/logs", "INFO", 3)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	taskLog := logger.WithTask("psutil.yaml").WithTaskID(id).WithPhase("Running")
//	taskLog.Info("task is running", "attempts", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"task is running","task":"psutil.yaml","task_id":"...","phase":"Running","attempts":3}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on log lines.
package logging
