package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Component returns l tagged with the component name
func Component(l Logger, name string) Logger {
	if l == nil {
		l = GetLogger()
	}
	return l.WithField("component", name)
}

// LogRequest logs one HTTP exchange at a level that matches its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogItem logs the outcome of one document in a batch
func LogItem(l Logger, id, kind, outcome string, err error) {
	fields := map[string]interface{}{
		"document_id": id,
		"kind":        kind,
		"outcome":     outcome,
	}

	if err != nil {
		l.WithError(err).WarnWithFields("Document not downloaded", fields)
		return
	}
	l.InfoWithFields("Document processed", fields)
}

// LogQuota logs the ledger state, warning when the remaining budget is low
func LogQuota(l Logger, used, limit, remaining, warnAt int) {
	fields := map[string]interface{}{
		"used":      used,
		"limit":     limit,
		"remaining": remaining,
	}

	switch {
	case remaining == 0:
		l.WarnWithFields("Monthly download quota exhausted", fields)
	case remaining <= warnAt:
		l.WarnWithFields("Monthly download quota running low", fields)
	default:
		l.InfoWithFields("Monthly download quota", fields)
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(string)                                   {}
func (n nopLogger) Info(string)                                    {}
func (n nopLogger) Warn(string)                                    {}
func (n nopLogger) Error(string)                                   {}
func (n nopLogger) Fatal(string)                                   {}
func (n nopLogger) WithField(string, interface{}) Logger           { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n nopLogger) WithError(error) Logger                         { return n }
func (n nopLogger) WithContext(context.Context) Logger             { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (n nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (n nopLogger) FatalWithFields(string, map[string]interface{}) {}

func (n nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
