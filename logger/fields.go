package logger

import (
	"context"

	"go.uber.org/zap"
)

// Field names shared by every component's structured log lines.
const (
	FieldJobID      = "job_id"
	FieldScheduleID = "schedule_id"
	FieldPersonaID  = "persona_id"
	FieldRequestID  = "request_id"
	FieldComponent  = "component"
	FieldWorker     = "worker"

	FieldOperation = "operation"
	FieldKind      = "kind"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldURL       = "url"

	FieldDurationMS = "duration_ms"
	FieldNextRun    = "next_run"
	FieldError      = "error"

	FieldCount   = "count"
	FieldCeiling = "ceiling"
	FieldActive  = "active"

	FieldStatus     = "status"
	FieldHTTPStatus = "http_status"
	FieldFrom       = "from"
	FieldTo         = "to"

	FieldAddress = "address"
	FieldRemote  = "remote"
	FieldSymbol  = "symbol"
)

// ctxField is a context key whose value becomes the log field of the same name
type ctxField string

// Carried in this order by FieldsFromContext.
var contextFields = []ctxField{FieldJobID, FieldRequestID, FieldComponent}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ctxField(FieldJobID), jobID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxField(FieldRequestID), requestID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ctxField(FieldComponent), component)
}

// FieldsFromContext returns the logging fields stored on ctx as key/value
// pairs for Infow and friends. Empty values are skipped.
func FieldsFromContext(ctx context.Context) []interface{} {
	var kv []interface{}
	for _, key := range contextFields {
		if v, _ := ctx.Value(key).(string); v != "" {
			kv = append(kv, string(key), v)
		}
	}
	return kv
}

// LoggerFromContext decorates base (or the global Logger when base is nil)
// with the fields stored on ctx. base comes back untouched when ctx has none.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = global()
	}
	if kv := FieldsFromContext(ctx); len(kv) > 0 {
		return base.With(kv...)
	}
	return base
}

// ComponentLogger names a child of the global logger, for injection:
//
//	pool := async.NewWorkerPool(ctx, jobs, dispatcher, cfg, logger.ComponentLogger("pulse.worker"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return global().Named(name)
}
