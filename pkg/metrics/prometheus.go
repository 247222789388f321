package metrics

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

var timingBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

type labeled[V any] struct {
	vec    V
	labels []string
}

// Prometheus maps sink calls onto lazily registered *Vec collectors. The label set of a
// metric is fixed by its first call; later calls missing a label report it empty and
// extra tags are dropped.
type Prometheus struct {
	registerer prometheus.Registerer

	mu       sync.Mutex
	counters map[string]*labeled[*prometheus.CounterVec]
	timings  map[string]*labeled[*prometheus.HistogramVec]
}

// NewPrometheus creates a sink registering its collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	return &Prometheus{
		registerer: reg,
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		timings:    make(map[string]*labeled[*prometheus.HistogramVec]),
	}
}

// Increment adds value to the counter parley_<name>_total.
func (p *Prometheus) Increment(name string, value float64, tags map[string]string) {
	c, err := p.counter(name, tags)
	if err != nil {
		return
	}

	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(value)
}

// RecordTiming observes d on the histogram parley_<name>_duration_seconds.
func (p *Prometheus) RecordTiming(name string, d time.Duration, tags map[string]string) {
	h, err := p.timing(name, tags)
	if err != nil {
		return
	}

	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(d.Seconds())
}

func (p *Prometheus) counter(name string, tags map[string]string) (*labeled[*prometheus.CounterVec], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}

	labels := slices.Sorted(maps.Keys(tags))
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      sanitize(name) + "_total",
		Help:      "Total of " + name,
	}, labels)

	if err := p.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}

		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}

		vec = existing
	}

	c := &labeled[*prometheus.CounterVec]{vec: vec, labels: labels}
	p.counters[name] = c

	return c, nil
}

func (p *Prometheus) timing(name string, tags map[string]string) (*labeled[*prometheus.HistogramVec], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.timings[name]; ok {
		return h, nil
	}

	labels := slices.Sorted(maps.Keys(tags))
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      sanitize(name) + "_duration_seconds",
		Help:      "Duration of " + name + " in seconds",
		Buckets:   timingBuckets,
	}, labels)

	if err := p.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}

		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}

		vec = existing
	}

	h := &labeled[*prometheus.HistogramVec]{vec: vec, labels: labels}
	p.timings[name] = h

	return h, nil
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = tags[l]
	}

	return values
}

// sanitize turns "work.commit-count" into "work_commit_count".
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
