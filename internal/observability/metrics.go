package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeStreams    prometheus.Gauge
	messagesCreated  *prometheus.CounterVec
	pipelineFailures *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	postprocessJobs  *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	logger           *zap.Logger
}

func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strand_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "strand_gateway_active_streams",
				Help: "Number of connected websocket clients",
			},
		),
		messagesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_messages_created_total",
				Help: "Messages accepted by the ingestion pipeline",
			},
			[]string{"threaded"},
		),
		pipelineFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_pipeline_failures_total",
				Help: "Ingestion pipeline failures by stage",
			},
			[]string{"stage"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_events_published_total",
				Help: "Chat events published to the hub",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strand_events_dropped_total",
				Help: "Events dropped on full client buffers",
			},
		),
		postprocessJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_postprocess_jobs_total",
				Help: "Post-processing jobs by outcome",
			},
			[]string{"outcome"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_cache_hits_total",
				Help: "Total number of cache hits/misses",
			},
			[]string{"cache_type", "status"},
		),
		logger: logger,
	}

	prometheus.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeStreams,
		m.messagesCreated,
		m.pipelineFailures,
		m.eventsPublished,
		m.eventsDropped,
		m.postprocessJobs,
		m.cacheHits,
	)

	return m
}

// Middleware instruments every request with the route template as the path
// label, so /channels/:id does not explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func (m *Metrics) StreamConnected()    { m.activeStreams.Inc() }
func (m *Metrics) StreamDisconnected() { m.activeStreams.Dec() }

func (m *Metrics) RecordMessageCreated(threaded bool) {
	m.messagesCreated.WithLabelValues(strconv.FormatBool(threaded)).Inc()
}

func (m *Metrics) RecordPipelineFailure(stage string) {
	m.pipelineFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordEventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordEventDropped() {
	m.eventsDropped.Inc()
}

func (m *Metrics) RecordPostprocessJob(outcome string) {
	m.postprocessJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCacheHit(cacheType string, hit bool) {
	status := "hit"
	if !hit {
		status = "miss"
	}
	m.cacheHits.WithLabelValues(cacheType, status).Inc()
}
