package prommetrics

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-tokenpool/core"
	"github.com/prometheus/client_golang/prometheus"
)

var runDurationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600}

type definition struct {
	help   string
	labels []string
}

var counterDefinitions = map[string]definition{
	core.MetricAccountsProcessed: {help: "Accounts processed by lifecycle runs.", labels: []string{"mode", "track", "outcome"}},
	core.MetricAdapterAttempts:   {help: "Backend adapter call attempts by outcome.", labels: []string{"operation", "outcome"}},
	core.MetricPoolAssembled:     {help: "Pool assembly attempts by outcome.", labels: []string{"outcome"}},
}

var histogramDefinitions = map[string]definition{
	core.MetricRunDuration: {help: "Lifecycle run duration in seconds.", labels: []string{"mode", "track"}},
}

// Recorder implements core.MetricsRecorder on a prometheus registry. Known
// metrics are registered up front; unknown names are registered on first use
// with their sorted tag keys as labels.
type Recorder struct {
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry:   registry,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labels:     map[string][]string{},
	}
	for name, def := range counterDefinitions {
		if _, err := r.registerCounter(name, def); err != nil {
			return nil, err
		}
	}
	for name, def := range histogramDefinitions {
		if _, err := r.registerHistogram(name, def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	r.mu.Lock()
	vec, ok := r.counters[name]
	if !ok {
		var err error
		vec, err = r.registerCounter(name, definition{help: name, labels: sortedKeys(tags)})
		if err != nil {
			r.mu.Unlock()
			return
		}
	}
	values := r.labelValues(name, tags)
	r.mu.Unlock()
	vec.WithLabelValues(values...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	vec, ok := r.histograms[name]
	if !ok {
		var err error
		vec, err = r.registerHistogram(name, definition{help: name, labels: sortedKeys(tags)})
		if err != nil {
			r.mu.Unlock()
			return
		}
	}
	values := r.labelValues(name, tags)
	r.mu.Unlock()
	vec.WithLabelValues(values...).Observe(value)
}

// WriteTextfile writes every registered metric to path in the node exporter
// textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func (r *Recorder) registerCounter(name string, def definition) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: def.help}, def.labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	r.counters[name] = vec
	r.labels[name] = def.labels
	return vec, nil
}

func (r *Recorder) registerHistogram(name string, def definition) (*prometheus.HistogramVec, error) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    def.help,
		Buckets: runDurationBuckets,
	}, def.labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	r.histograms[name] = vec
	r.labels[name] = def.labels
	return vec, nil
}

// labelValues maps tags onto the label order fixed at registration. Missing
// tags become empty values and extra tags are dropped.
func (r *Recorder) labelValues(name string, tags map[string]string) []string {
	labels := r.labels[name]
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = tags[label]
	}
	return values
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var _ core.MetricsRecorder = (*Recorder)(nil)
