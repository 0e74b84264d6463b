package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeEmpty     = "empty"
)

// Merge modes
const (
	MergeDirect = "direct"
	MergeMerged = "merged"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Knowledge metrics
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Statements    prometheus.Counter
	Merges        *prometheus.CounterVec
	Searches      prometheus.Counter

	// Chat metrics
	ChatReplies *prometheus.CounterVec
}

// NewCollector creates a metrics collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "knowledge_builds_total",
				Help:      "Knowledge build cycles by outcome",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "knowledge_build_duration_seconds",
				Help:      "Knowledge build cycle duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
		),
		Statements: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "knowledge_statements_total",
				Help:      "Cypher statements committed by knowledge builds",
			},
		),
		Merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "knowledge_merges_total",
				Help:      "Merge coordinator decisions by mode",
			},
			[]string{"mode"},
		),
		Searches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_searches_total",
				Help:      "Semantic searches served",
			},
		),
		ChatReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_replies_total",
				Help:      "Assistant replies generated, by prompt flavour and whether they closed the conversation",
			},
			[]string{"flavour", "final"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Builds,
		c.BuildDuration,
		c.Statements,
		c.Merges,
		c.Searches,
		c.ChatReplies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordBuild records a finished build cycle
func (c *Collector) RecordBuild(outcome string, duration time.Duration, statements int) {
	c.Builds.WithLabelValues(outcome).Inc()
	c.BuildDuration.Observe(duration.Seconds())
	if statements > 0 {
		c.Statements.Add(float64(statements))
	}
}

// RecordMerge records which path the merge coordinator took
func (c *Collector) RecordMerge(mode string) {
	c.Merges.WithLabelValues(mode).Inc()
}

// RecordSearch records one semantic search
func (c *Collector) RecordSearch() {
	c.Searches.Inc()
}

// RecordChatReply records one generated assistant reply
func (c *Collector) RecordChatReply(flavour string, final bool) {
	c.ChatReplies.WithLabelValues(flavour, strconv.FormatBool(final)).Inc()
}
