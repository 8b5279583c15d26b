package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	metricsNamespace     = "chatbotwidget"
	metricLabelMethod    = "method"
	metricLabelRoute     = "route"
	metricLabelStatus    = "status"
	metricLabelOutcome   = "outcome"
	metricRouteUnmatched = "unmatched"

	sendOutcomeDelivered   = "delivered"
	sendOutcomeFailed      = "failed"
	sendOutcomeRejected    = "rejected"
	sendOutcomeRateLimited = "rate_limited"
)

// Metrics holds the host's prometheus collectors on a private registry. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	sessionsEvicted  prometheus.Counter
	messagesSent     *prometheus.CounterVec
	popupsDismissed  prometheus.Counter
	greetings        prometheus.Counter
	streamsConnected prometheus.Gauge
}

// NewMetrics registers the host collectors together with the Go and process collectors.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{metricLabelMethod, metricLabelRoute, metricLabelStatus}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{metricLabelRoute}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Widget sessions currently hosted.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_evicted_total",
			Help:      "Widget sessions closed by the idle sweep.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Visitor message sends by outcome.",
		}, []string{metricLabelOutcome}),
		popupsDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "welcome_popups_dismissed_total",
			Help:      "Welcome popups dismissed by visitors.",
		}),
		greetings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "greetings_total",
			Help:      "Greeting messages injected into conversations.",
		}),
		streamsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "event_streams_connected",
			Help:      "Open server-sent event streams.",
		}),
	}
	metrics.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.httpRequests,
		metrics.httpDuration,
		metrics.activeSessions,
		metrics.sessionsEvicted,
		metrics.messagesSent,
		metrics.popupsDismissed,
		metrics.greetings,
		metrics.streamsConnected,
	)
	return metrics
}

// Handler serves the registry in the prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	if metrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route template.
func (metrics *Metrics) Middleware() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		if metrics == nil {
			ginContext.Next()
			return
		}
		start := time.Now()
		ginContext.Next()
		route := ginContext.FullPath()
		if route == "" {
			route = metricRouteUnmatched
		}
		metrics.httpRequests.WithLabelValues(ginContext.Request.Method, route, strconv.Itoa(ginContext.Writer.Status())).Inc()
		metrics.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (metrics *Metrics) setActiveSessions(count int) {
	if metrics == nil {
		return
	}
	metrics.activeSessions.Set(float64(count))
}

func (metrics *Metrics) addEvicted(count int) {
	if metrics == nil {
		return
	}
	metrics.sessionsEvicted.Add(float64(count))
}

func (metrics *Metrics) recordSend(outcome string) {
	if metrics == nil {
		return
	}
	metrics.messagesSent.WithLabelValues(outcome).Inc()
}

// observeSessionEvent counts the session transitions that matter for operators. A send is
// delivered once its bot reply lands and failed once its error bubble does.
func (metrics *Metrics) observeSessionEvent(event widget.SessionEvent) {
	if metrics == nil {
		return
	}
	switch event.Cause {
	case widget.SessionCauseWelcomeDismissed:
		metrics.popupsDismissed.Inc()
	case widget.SessionCauseGreeting:
		metrics.greetings.Inc()
	case widget.SessionCauseBotReply:
		metrics.messagesSent.WithLabelValues(sendOutcomeDelivered).Inc()
	case widget.SessionCauseSendFailed:
		metrics.messagesSent.WithLabelValues(sendOutcomeFailed).Inc()
	}
}

func (metrics *Metrics) streamOpened() {
	if metrics == nil {
		return
	}
	metrics.streamsConnected.Inc()
}

func (metrics *Metrics) streamClosed() {
	if metrics == nil {
		return
	}
	metrics.streamsConnected.Dec()
}
