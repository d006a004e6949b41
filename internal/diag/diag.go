// Package diag reports non-fatal hardware access problems. Every report is
// counted; log lines are rate limited so a failing register cannot flood the
// diagnostic stream.
package diag

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// Kind classifies a diagnostic
type Kind string

const (
	KindWrite  Kind = "msr_write"
	KindRead   Kind = "msr_read"
	KindWrap   Kind = "counter_wrap"
	KindOutput Kind = "output"
)

// Reporter logs and counts diagnostics
type Reporter struct {
	log        *zap.Logger
	limiter    *rate.Limiter
	total      *prometheus.CounterVec
	suppressed atomic.Uint64
}

// NewReporter registers its counter with reg. A nil limiter logs everything.
func NewReporter(log *zap.Logger, limiter *rate.Limiter, reg prometheus.Registerer) *Reporter {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Reporter{
		log:     log,
		limiter: limiter,
		total: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chalat_diagnostics_total",
				Help: "Non-fatal register access and output problems by kind",
			},
			[]string{"kind"},
		),
	}
}

// Nop returns a Reporter that counts into a private registry and logs nothing
func Nop() *Reporter {
	return NewReporter(zap.NewNop(), nil, prometheus.NewRegistry())
}

// Report counts a diagnostic and logs it unless the rate limit is exceeded.
// A nil err logs at debug level. Reports below the logger's level do not
// consume the limit.
func (r *Reporter) Report(kind Kind, err error, fields ...zap.Field) {
	r.total.WithLabelValues(string(kind)).Inc()

	lvl := zapcore.WarnLevel
	if err == nil {
		lvl = zapcore.DebugLevel
	}
	ce := r.log.Check(lvl, "diagnostic")
	if ce == nil {
		return
	}
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	fields = append(fields, zap.String("kind", string(kind)))
	if n := r.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Uint64("suppressed", n))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// Counter exposes the per-kind counter
func (r *Reporter) Counter(kind Kind) prometheus.Counter {
	return r.total.WithLabelValues(string(kind))
}
