package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/htier-pubsub/HtierDemoApp/metric"
)

// storeMetrics holds Prometheus metrics for the message store.
type storeMetrics struct {
	appends prometheus.Counter
	drops   prometheus.Counter
	clears  prometheus.Counter
	size    prometheus.Gauge
}

func newStoreMetrics(registry *metric.MetricsRegistry) (*storeMetrics, error) {
	m := &storeMetrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "store",
			Name:      "appends_total",
			Help:      "Total messages appended to the store",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "store",
			Name:      "drops_total",
			Help:      "Messages dropped oldest-first by the capacity cap",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "store",
			Name:      "clears_total",
			Help:      "Store generations started by Clear",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "store",
			Name:      "size",
			Help:      "Messages currently retained",
		}),
	}

	if err := registry.RegisterCounter("store", "appends", m.appends); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("store", "drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("store", "clears", m.clears); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("store", "size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}
