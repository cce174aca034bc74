// Package metrics exports relay activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "gyanasetu_relay"

// Observer records upload, delete and lookup activity.
type Observer struct {
	uploadDuration    prometheus.Histogram
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	uploadedBytes     prometheus.Counter
}

// NewObserver registers the relay metrics with reg. Collectors that are
// already registered (for example by an earlier observer in the same process)
// are reused.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	uploadDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_duration_seconds",
		Help:      "Latency of complete upload requests, from first byte to share link.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}))
	if err != nil {
		return nil, fmt.Errorf("register upload histogram: %w", err)
	}
	operationDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of relay operations by name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"}))
	if err != nil {
		return nil, fmt.Errorf("register operation histogram: %w", err)
	}
	operationErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of failed relay operations by name and error kind.",
	}, []string{"operation", "kind"}))
	if err != nil {
		return nil, fmt.Errorf("register error counter: %w", err)
	}
	uploadedBytes, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative size of files successfully relayed to the object store.",
	}))
	if err != nil {
		return nil, fmt.Errorf("register uploaded bytes counter: %w", err)
	}

	return &Observer{
		uploadDuration:    uploadDuration,
		operationDuration: operationDuration,
		operationErrors:   operationErrors,
		uploadedBytes:     uploadedBytes,
	}, nil
}

// RecordUpload tracks one upload request. kind labels the failure and is
// ignored when err is nil.
func (o *Observer) RecordUpload(duration time.Duration, sizeBytes int64, kind string, err error) {
	if o == nil {
		return
	}
	o.uploadDuration.Observe(duration.Seconds())
	o.operationDuration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("upload", kind).Inc()
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

// RecordOperation tracks a delete, lookup or compensating delete.
func (o *Observer) RecordOperation(operation string, duration time.Duration, kind string, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues(operation, kind).Inc()
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}
