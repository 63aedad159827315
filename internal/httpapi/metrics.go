package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rbaliyan/smsbox/store"
)

// metrics are registered on a per-server registry so several servers (and
// tests) can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	events   *prometheus.CounterVec
}

func newMetrics(stats statsFunc, logger *slog.Logger) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(&folderCollector{stats: stats, logger: logger})

	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsbox_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smsbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "smsbox_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsbox_events_submitted_total",
			Help: "Events handed to the dispatcher through the API, by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// middleware records request count, latency and in-flight requests, labelled
// by chi route pattern to keep cardinality bounded.
func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statsFunc func(ctx context.Context) (*store.Stats, error)

var (
	messagesDesc = prometheus.NewDesc("smsbox_messages",
		"Stored messages by folder", []string{"folder"}, nil)
	unreadDesc = prometheus.NewDesc("smsbox_messages_unread",
		"Unread stored messages by folder", []string{"folder"}, nil)
)

// folderCollector reads folder counts from the store at scrape time.
type folderCollector struct {
	stats  statsFunc
	logger *slog.Logger
}

func (c *folderCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- messagesDesc
	ch <- unreadDesc
}

func (c *folderCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats, err := c.stats(ctx)
	if err != nil {
		c.logger.Debug("skipping folder metrics", "error", err)
		return
	}
	for _, folder := range store.Folders {
		counts := stats.Folders[folder]
		name := shortFolder(folder)
		ch <- prometheus.MustNewConstMetric(messagesDesc, prometheus.GaugeValue, float64(counts.Total), name)
		ch <- prometheus.MustNewConstMetric(unreadDesc, prometheus.GaugeValue, float64(counts.Unread), name)
	}
}

// shortFolder strips the storage prefix: "__inbox" becomes "inbox".
func shortFolder(folder string) string {
	return strings.TrimPrefix(folder, "__")
}
