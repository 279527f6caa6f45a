package core

import "context"

const (
	MetricAccountsProcessed = "tokenpool_accounts_processed_total"
	MetricAdapterAttempts   = "tokenpool_adapter_attempts_total"
	MetricRunDuration       = "tokenpool_run_duration_seconds"
	MetricPoolAssembled     = "tokenpool_pool_assembled_total"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
