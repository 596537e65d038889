// Package metrics exposes moderation counters in Prometheus format.
//
// All recording methods are safe on a nil *Collector, so components can take
// an optional collector without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the moderation metrics of one registry.
type Collector struct {
	gatherer prometheus.Gatherer

	messages       *prometheus.CounterVec
	oracleRequests *prometheus.CounterVec
	oracleDuration *prometheus.HistogramVec
	verdicts       *prometheus.CounterVec
	actions        *prometheus.CounterVec
	events         *prometheus.CounterVec
	reportsDropped *prometheus.CounterVec
	cache          *prometheus.CounterVec
}

// New registers the moderation metrics on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the moderation metrics on reg and serves them
// from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	f := promauto.With(reg)
	start := time.Now()
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "modbot_uptime_seconds",
		Help: "Seconds since the process started",
	}, func() float64 { return time.Since(start).Seconds() })

	return &Collector{
		gatherer: g,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_messages_moderated_total",
			Help: "Number of messages run through the moderation pipeline",
		}, []string{"platform"}),
		oracleRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_oracle_requests_total",
			Help: "Number of oracle classification calls, by content kind and outcome",
		}, []string{"kind", "status"}),
		oracleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modbot_oracle_duration_seconds",
			Help:    "Duration of oracle classification calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_verdicts_total",
			Help: "Number of non-empty verdicts, by content kind",
		}, []string{"kind"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_actions_total",
			Help: "Number of enforcement actions executed, by action and outcome",
		}, []string{"platform", "action", "status"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_events_total",
			Help: "Number of bus events triggered",
		}, []string{"kind"}),
		reportsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_reports_dropped_total",
			Help: "Number of reports not delivered because of the rate limit",
		}, []string{"platform"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_oracle_cache_total",
			Help: "Verdict cache lookups, by content kind and result",
		}, []string{"kind", "result"}),
	}
}

func (c *Collector) MessageModerated(platform string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(platform).Inc()
}

// OracleCall records one classification call.
func (c *Collector) OracleCall(kind string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.oracleRequests.WithLabelValues(kind, status(err)).Inc()
	c.oracleDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) Verdict(kind string) {
	if c == nil {
		return
	}
	c.verdicts.WithLabelValues(kind).Inc()
}

func (c *Collector) Action(platform, action string, err error) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(platform, action, status(err)).Inc()
}

func (c *Collector) Event(kind string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(kind).Inc()
}

func (c *Collector) ReportDropped(platform string) {
	if c == nil {
		return
	}
	c.reportsDropped.WithLabelValues(platform).Inc()
}

func (c *Collector) CacheLookup(kind string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cache.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
