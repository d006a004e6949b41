package main

import (
	"time"
)

// WindowMetrics summarizes one scope's latency readings over a time window
type WindowMetrics struct {
	WindowStart  int64     `json:"window_start"`
	WindowEnd    int64     `json:"window_end"`
	Scope        string    `json:"scope"`
	Readings     uint64    `json:"readings"`
	FiniteCount  uint64    `json:"finite_readings"`
	AvgLatency   float64   `json:"avg_latency_ns"`
	MinLatency   float64   `json:"min_latency_ns"`
	MaxLatency   float64   `json:"max_latency_ns"`
	P50Latency   float64   `json:"p50_latency_ns"`
	P95Latency   float64   `json:"p95_latency_ns"`
	P99Latency   float64   `json:"p99_latency_ns"`
	CounterWraps uint64    `json:"counter_wraps"`
	AgentID      string    `json:"agent_id"`
	CPU          int       `json:"cpu"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewWindowMetrics creates a new WindowMetrics instance
func NewWindowMetrics(scope string) *WindowMetrics {
	return &WindowMetrics{
		Scope:     scope,
		Timestamp: time.Now().UTC(),
	}
}
