package main

import (
	"time"

	"go.uber.org/zap"
)

// flushTimeout bounds how long a finished run waits for its last windows
const flushTimeout = 5 * time.Second

// summaryExport connects the window aggregator to the websocket client
type summaryExport struct {
	agg       *WindowAggregator
	client    *WebSocketClient
	windows   chan *WindowMetrics
	forwarded chan struct{}
	log       *zap.Logger
}

func startSummaryExport(cfg Config, cpu int, log *zap.Logger) *summaryExport {
	e := &summaryExport{
		client:    NewWebSocketClient(cfg.ServerURL, cfg.AgentID, log),
		windows:   make(chan *WindowMetrics, 16),
		forwarded: make(chan struct{}),
		log:       log,
	}
	e.agg = NewWindowAggregator(time.Duration(cfg.Window), e.windows, cfg.AgentID, cpu)

	if err := e.client.Connect(); err != nil {
		log.Warn("websocket connect failed, will retry", zap.Error(err))
	}
	e.client.StartReconnectLoop()
	go func() {
		defer close(e.forwarded)
		e.client.Forward(e.windows)
	}()
	return e
}

// Close emits the partial window, waits for queued windows to reach the
// server and disconnects. No reading may be observed afterwards.
func (e *summaryExport) Close() {
	e.log.Info("closing window",
		zap.Time("window_start", time.Unix(0, e.agg.GetCurrentWindowStart())),
		zap.Int("samples", e.agg.GetSampleCount()))
	e.agg.RotateWindow()
	close(e.windows)
	<-e.forwarded

	if err := e.client.Flush(flushTimeout); err != nil {
		e.log.Warn("window summaries not delivered", zap.Error(err))
	}
	e.client.Disconnect()
}
