// Package metrics holds the Prometheus collectors of the duo server and reaper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	ReaperDeleted     *prometheus.CounterVec
	ReaperErrors      *prometheus.CounterVec
	ReaperRunDuration prometheus.Histogram

	MatchesCreated   *prometheus.CounterVec
	MatchesCompleted *prometheus.CounterVec
	QueueEvents      *prometheus.CounterVec
	FeedClients      prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge
}

// New builds a fresh registry so tests and binaries never share collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ReaperDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_reaper_deleted_total", Help: "Records deleted by the lifecycle reaper"},
			[]string{"sweep"},
		),
		ReaperErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_reaper_sweep_errors_total", Help: "Failed reaper sweeps and deletions"},
			[]string{"sweep"},
		),
		ReaperRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "duo_reaper_run_duration_seconds",
			Help:    "Duration of one reaper run",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}),
		MatchesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_matches_created_total", Help: "Matches created"},
			[]string{"type"},
		),
		MatchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_matches_completed_total", Help: "Matches completed"},
			[]string{"type", "reason"},
		),
		QueueEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_queue_events_total", Help: "Matchmaking queue events"},
			[]string{"event"},
		),
		FeedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "duo_feed_clients", Help: "Open match feed WebSockets"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "duo_http_requests_total", Help: "HTTP requests"},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "duo_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "route"},
		),
		HTTPInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "duo_http_requests_in_flight", Help: "In-flight HTTP requests"},
		),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReaperDeleted, m.ReaperErrors, m.ReaperRunDuration,
		m.MatchesCreated, m.MatchesCompleted, m.QueueEvents, m.FeedClients,
		m.HTTPRequests, m.HTTPDuration, m.HTTPInFlight,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// TrackAIGames exposes the number of AI seats currently playing. Call it once.
func (m *Metrics) TrackAIGames(active func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "duo_ai_games_active", Help: "AI seats currently playing"},
		func() float64 { return float64(active()) },
	))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
