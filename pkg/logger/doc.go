// Package logger provides the structured logging interface used across catlux.
//
// It wraps zerolog with a small interface so components can take a Logger at
// construction and tests can swap in NewNopLogger or NewTestLogger.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.Component(logger.GetLogger(), "executor").WithField("run_id", runID)
//	log.InfoWithFields("Document processed", map[string]interface{}{
//	    "document_id": "119215",
//	    "kind":        "exam",
//	})
//
// Console output is colored for terminals. Setting Format to "json" emits raw
// JSON lines instead, and File appends JSON lines to a file in addition to the
// terminal output.
package logger
