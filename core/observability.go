package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// telemetry is the logging and metrics surface shared by the scheduler and
// the assembler.
type telemetry struct {
	logger  Logger
	metrics MetricsRecorder
}

func (t telemetry) logDebug(ctx context.Context, message string, fields map[string]any) {
	t.logWithLevel(ctx, "debug", message, fields)
}

func (t telemetry) logInfo(ctx context.Context, message string, fields map[string]any) {
	t.logWithLevel(ctx, "info", message, fields)
}

func (t telemetry) logWarn(ctx context.Context, message string, fields map[string]any) {
	t.logWithLevel(ctx, "warn", message, fields)
}

func (t telemetry) logError(ctx context.Context, message string, fields map[string]any) {
	t.logWithLevel(ctx, "error", message, fields)
}

func (t telemetry) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if t.logger == nil {
		return
	}
	logger := t.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (t telemetry) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (t telemetry) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

// retryObserver logs and counts every failed attempt of an adapter operation.
func (t telemetry) retryObserver(ctx context.Context, operation string, fields map[string]any) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		logged := cloneFields(fields)
		logged["operation"] = operation
		logged["attempt"] = attempt
		logged["backoff"] = delay.String()
		logged["error"] = errorString(err)
		t.logWarn(ctx, "adapter call failed, backing off", logged)
		t.recordCounter(ctx, MetricAdapterAttempts, 1, map[string]string{
			"operation": operation,
			"outcome":   "retry",
		})
	}
}

func (t telemetry) recordAttemptOutcome(ctx context.Context, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = FailureKind(err)
	}
	t.recordCounter(ctx, MetricAdapterAttempts, 1, map[string]string{
		"operation": operation,
		"outcome":   outcome,
	})
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
