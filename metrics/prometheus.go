package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-dcb/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultLabels are the tag keys the service attaches to operation metrics.
var DefaultLabels = []string{"operation", "status", "role", "target_status", "job_id"}

var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// PrometheusRecorder turns service counters and histograms into Prometheus
// collectors, registering one vector per metric name on first use. Tags
// outside the label set are dropped.
type PrometheusRecorder struct {
	namespace  string
	labels     []string
	buckets    []float64
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*PrometheusRecorder)

func WithNamespace(namespace string) Option {
	return func(r *PrometheusRecorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *PrometheusRecorder) {
		if len(labels) > 0 {
			r.labels = append([]string(nil), labels...)
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *PrometheusRecorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithRegistry registers collectors on registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *PrometheusRecorder) {
		if registry != nil {
			r.registerer = registry
			r.gatherer = registry
		}
	}
}

func NewPrometheusRecorder(opts ...Option) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	recorder := &PrometheusRecorder{
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    defaultBuckets,
		registerer: registry,
		gatherer:   registry,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, err := r.counter(name)
	if err != nil {
		return
	}
	counter.With(r.labelValues(tags)).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, err := r.histogram(name)
	if err != nil {
		return
	}
	histogram.With(r.labelValues(tags)).Observe(value)
}

// Handler exposes the recorder's registry in the text exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

func (r *PrometheusRecorder) counter(name string) (*prometheus.CounterVec, error) {
	key := sanitize(name)
	if key == "" {
		return nil, fmt.Errorf("metrics: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[key]; ok {
		return counter, nil
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      key,
		Help:      "DCB counter " + strings.TrimSpace(name),
	}, r.labels)
	if err := r.registerer.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !asAlreadyRegistered(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	r.counters[key] = counter
	return counter, nil
}

func (r *PrometheusRecorder) histogram(name string) (*prometheus.HistogramVec, error) {
	key := sanitize(name)
	if key == "" {
		return nil, fmt.Errorf("metrics: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[key]; ok {
		return histogram, nil
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      key,
		Help:      "DCB histogram " + strings.TrimSpace(name),
		Buckets:   r.buckets,
	}, r.labels)
	if err := r.registerer.Register(histogram); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !asAlreadyRegistered(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		histogram = existing
	}
	r.histograms[key] = histogram
	return histogram, nil
}

func (r *PrometheusRecorder) labelValues(tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(r.labels))
	for _, label := range r.labels {
		values[label] = strings.TrimSpace(tags[label])
	}
	return values
}

func asAlreadyRegistered(err error, target *prometheus.AlreadyRegisteredError) bool {
	already, ok := err.(prometheus.AlreadyRegisteredError)
	if ok {
		*target = already
	}
	return ok
}

// sanitize maps dotted service metric names onto the Prometheus charset.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
