package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts player activity and HTTP traffic on its own registry. It
// implements game.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	gamesStarted     prometheus.Counter
	choicesTotal     *prometheus.CounterVec
	pickupsTotal     *prometheus.CounterVec
	endingsTotal     *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		gamesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "castle_games_started_total",
			Help: "Total number of games started.",
		}),
		choicesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castle_choices_total",
			Help: "Total number of choice attempts by outcome.",
		}, []string{"outcome"}),
		pickupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castle_item_pickups_total",
			Help: "Total number of successful pickups by whether the item was new.",
		}, []string{"new"}),
		endingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castle_endings_total",
			Help: "Total number of finished games by ending.",
		}, []string{"ending"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castle_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castle_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) GameStarted() { m.gamesStarted.Inc() }

func (m *Metrics) ChoiceApplied(outcome string) { m.choicesTotal.WithLabelValues(outcome).Inc() }

func (m *Metrics) ItemPickedUp(added bool) {
	m.pickupsTotal.WithLabelValues(strconv.FormatBool(added)).Inc()
}

func (m *Metrics) EndingReached(endingID string) { m.endingsTotal.WithLabelValues(endingID).Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// middleware records one sample per request, labelled by the matched route
// so ids in the path do not explode cardinality.
func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDurations.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
