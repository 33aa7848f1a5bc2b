// Package metrics exposes monitor telemetry in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "review_monitor"

// Prometheus records run, delivery and collector metrics on its own registry.
type Prometheus struct {
	registry        *prometheus.Registry
	runs            *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	retries         *prometheus.CounterVec
	collectDuration prometheus.Histogram
	lastReviewID    prometheus.Gauge
}

func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Monitor runs by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by kind and result.",
		}, []string{"kind", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_retries_total",
			Help:      "Collector request retries by protocol phase.",
		}, []string{"phase"}),
		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_duration_seconds",
			Help:      "Time spent triggering, polling and downloading a snapshot.",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 300},
		}),
		lastReviewID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_review_id",
			Help:      "Highest review ID committed to state.",
		}),
	}
	p.registry.MustRegister(
		p.runs,
		p.notifications,
		p.retries,
		p.collectDuration,
		p.lastReviewID,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) RunFinished(outcome string) {
	p.runs.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) NotificationSent(kind string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	p.notifications.WithLabelValues(kind, result).Inc()
}

func (p *Prometheus) CollectDuration(d time.Duration) {
	p.collectDuration.Observe(d.Seconds())
}

func (p *Prometheus) LastReviewID(id int64) {
	p.lastReviewID.Set(float64(id))
}

// CollectorRetry satisfies brightdata.RetryObserver.
func (p *Prometheus) CollectorRetry(phase string) {
	p.retries.WithLabelValues(phase).Inc()
}

// Handler serves the registry for scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Push sends the current values to a Pushgateway. Used by one-shot runs that
// exit before any scrape could happen.
func (p *Prometheus) Push(ctx context.Context, gatewayURL, instance string) error {
	err := push.New(gatewayURL, namespace).
		Gatherer(p.registry).
		Grouping("instance", instance).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
