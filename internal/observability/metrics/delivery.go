package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryLatency tracks outbound webhook round trips, scraped from /metrics.
type DeliveryLatency struct {
	histogram *prometheus.HistogramVec
}

func NewDeliveryLatency(registerer prometheus.Registerer) (*DeliveryLatency, error) {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspace_webhook_delivery_duration_seconds",
		Help:    "Outbound webhook delivery latency per attempt.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status", "format"})

	if registerer != nil {
		if err := registerer.Register(histogram); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				return nil, err
			}
			histogram = existing
		}
	}
	return &DeliveryLatency{histogram: histogram}, nil
}

// ProvideDeliveryLatency registers on the default prometheus registry.
func ProvideDeliveryLatency() (*DeliveryLatency, error) {
	return NewDeliveryLatency(prometheus.DefaultRegisterer)
}

func (d *DeliveryLatency) Observe(status, format string, elapsed time.Duration) {
	if d == nil {
		return
	}
	d.histogram.WithLabelValues(strings.TrimSpace(status), strings.TrimSpace(format)).Observe(elapsed.Seconds())
}
