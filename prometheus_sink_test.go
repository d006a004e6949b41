package main

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/engine"
)

func TestPrometheusSinkObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Observe(engine.Reading{Local: 110, Remote: 190, Wraps: 1})
	sink.Observe(engine.Reading{Local: 90, Remote: math.NaN()})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.readings))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.wraps))
	assert.Equal(t, 90.0, testutil.ToFloat64(sink.latency.WithLabelValues("local")))
	assert.True(t, math.IsNaN(testutil.ToFloat64(sink.latency.WithLabelValues("remote"))))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.degenerate.WithLabelValues("remote")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.degenerate.WithLabelValues("local")))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.histogram, "chalat_memory_latency_distribution_nanoseconds"))
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg).Observe(engine.Reading{Local: 100, Remote: 200})

	server := serveMetrics("127.0.0.1:0", reg, zap.NewNop())
	defer server.Close()

	// port 0 hides the bound address, so drive the handler directly
	rec := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	server.Handler.ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `chalat_memory_latency_nanoseconds{scope="remote"} 200`)
}
