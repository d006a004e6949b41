package main

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/engine"
)

// PrometheusSink mirrors each reading into gauges and a histogram
type PrometheusSink struct {
	latency    *prometheus.GaugeVec
	histogram  *prometheus.HistogramVec
	degenerate *prometheus.CounterVec
	readings   prometheus.Counter
	wraps      prometheus.Counter
}

// NewPrometheusSink registers the sink's collectors with reg
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	f := promauto.With(reg)
	return &PrometheusSink{
		latency: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chalat_memory_latency_nanoseconds",
				Help: "Latest TOR-derived DRd miss latency",
			},
			[]string{"scope"},
		),
		histogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chalat_memory_latency_distribution_nanoseconds",
				Help:    "Distribution of finite latency readings",
				Buckets: prometheus.LinearBuckets(50, 25, 20),
			},
			[]string{"scope"},
		),
		degenerate: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chalat_degenerate_intervals_total",
				Help: "Intervals with no inserts, reported as NaN or Inf",
			},
			[]string{"scope"},
		),
		readings: f.NewCounter(prometheus.CounterOpts{
			Name: "chalat_readings_total",
			Help: "Emitted latency readings",
		}),
		wraps: f.NewCounter(prometheus.CounterOpts{
			Name: "chalat_counter_wraps_total",
			Help: "Counter wraparounds seen between consecutive samples",
		}),
	}
}

func (p *PrometheusSink) Observe(r engine.Reading) {
	p.readings.Inc()
	p.wraps.Add(float64(r.Wraps))
	p.observe(scopes[0], r.Local)
	p.observe(scopes[1], r.Remote)
}

func (p *PrometheusSink) observe(scope string, v float64) {
	p.latency.WithLabelValues(scope).Set(v)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		p.degenerate.WithLabelValues(scope).Inc()
		return
	}
	p.histogram.WithLabelValues(scope).Observe(v)
}

// serveMetrics exposes reg on addr/metrics until the process exits
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return server
}
