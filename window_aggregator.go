package main

import (
	"math"
	"sync"
	"time"

	"github.com/OriD-19/chalat/internal/engine"
	"github.com/OriD-19/chalat/internal/uncore"
)

var scopes = [...]string{uncore.Local.String(), uncore.Remote.String()}

// WindowAggregator folds latency readings into fixed time windows
type WindowAggregator struct {
	mutex          sync.RWMutex
	currentWindow  map[string][]float64 // scope → latencies
	wraps          uint64
	windowStart    int64
	windowDuration time.Duration
	metricsChannel chan *WindowMetrics
	agentID        string
	cpu            int
}

// NewWindowAggregator creates a new WindowAggregator
func NewWindowAggregator(windowDuration time.Duration, metricsChannel chan *WindowMetrics, agentID string, cpu int) *WindowAggregator {
	return &WindowAggregator{
		currentWindow:  make(map[string][]float64),
		windowStart:    alignWindow(time.Now().UnixNano(), windowDuration),
		windowDuration: windowDuration,
		metricsChannel: metricsChannel,
		agentID:        agentID,
		cpu:            cpu,
	}
}

func alignWindow(ts int64, d time.Duration) int64 {
	return (ts / int64(d)) * int64(d)
}

// Observe adds a reading to the window its timestamp falls in, closing the
// current window first when the reading is past its end
func (wa *WindowAggregator) Observe(r engine.Reading) {
	ts := r.Time.UnixNano()

	wa.mutex.Lock()
	defer wa.mutex.Unlock()

	if ts >= wa.windowStart+int64(wa.windowDuration) {
		wa.rotateLocked()
		wa.windowStart = alignWindow(ts, wa.windowDuration)
	}
	wa.currentWindow[scopes[uncore.Local]] = append(wa.currentWindow[scopes[uncore.Local]], r.Local)
	wa.currentWindow[scopes[uncore.Remote]] = append(wa.currentWindow[scopes[uncore.Remote]], r.Remote)
	wa.wraps += uint64(r.Wraps)
}

// RotateWindow emits metrics for the completed window and starts the next one
func (wa *WindowAggregator) RotateWindow() {
	wa.mutex.Lock()
	defer wa.mutex.Unlock()

	wa.rotateLocked()
}

func (wa *WindowAggregator) rotateLocked() {
	for _, scope := range scopes {
		latencies := wa.currentWindow[scope]
		if len(latencies) == 0 {
			continue
		}
		metrics := wa.calculateMetrics(scope, latencies)

		select {
		case wa.metricsChannel <- metrics:
		default:
		}
	}

	wa.currentWindow = make(map[string][]float64)
	wa.wraps = 0
	wa.windowStart += int64(wa.windowDuration)
}

// calculateMetrics computes aggregated metrics for one scope of the current window
func (wa *WindowAggregator) calculateMetrics(scope string, latencies []float64) *WindowMetrics {
	metrics := NewWindowMetrics(scope)
	metrics.WindowStart = wa.windowStart
	metrics.WindowEnd = wa.windowStart + int64(wa.windowDuration)
	metrics.Readings = uint64(len(latencies))
	metrics.CounterWraps = wa.wraps
	metrics.AgentID = wa.agentID
	metrics.CPU = wa.cpu

	var total float64
	minLatency := math.Inf(1)
	maxLatency := math.Inf(-1)
	for _, latency := range latencies {
		if math.IsNaN(latency) || math.IsInf(latency, 0) {
			continue
		}
		metrics.FiniteCount++
		total += latency
		minLatency = math.Min(minLatency, latency)
		maxLatency = math.Max(maxLatency, latency)
	}
	if metrics.FiniteCount == 0 {
		return metrics
	}

	metrics.AvgLatency = total / float64(metrics.FiniteCount)
	metrics.MinLatency = minLatency
	metrics.MaxLatency = maxLatency

	pcts := CalculateMultiplePercentiles(latencies, []float64{50, 95, 99})
	metrics.P50Latency = pcts[50]
	metrics.P95Latency = pcts[95]
	metrics.P99Latency = pcts[99]
	return metrics
}

// GetCurrentWindowStart returns the start time of the current window
func (wa *WindowAggregator) GetCurrentWindowStart() int64 {
	wa.mutex.RLock()
	defer wa.mutex.RUnlock()
	return wa.windowStart
}

// GetSampleCount returns the number of samples in the current window
func (wa *WindowAggregator) GetSampleCount() int {
	wa.mutex.RLock()
	defer wa.mutex.RUnlock()

	count := 0
	for _, latencies := range wa.currentWindow {
		count += len(latencies)
	}
	return count
}
