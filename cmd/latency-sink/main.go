// Command latency-sink accepts window summaries from chalat agents over a
// websocket and logs them.
package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WindowMetrics mirrors the structure sent by the agent
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

type sink struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func newSink(log *zap.Logger) *sink {
	return &sink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.Stringer("remote", conn.RemoteAddr()))
	log.Info("agent connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read failed", zap.Error(err))
			}
			break
		}

		var m WindowMetrics
		if err := json.Unmarshal(message, &m); err != nil {
			log.Warn("unparseable message", zap.Error(err), zap.ByteString("raw", message))
		} else {
			log.Info("window",
				zap.String("agent_id", m.AgentID),
				zap.Int("cpu", m.CPU),
				zap.String("scope", m.Scope),
				zap.Time("start", time.Unix(0, m.WindowStart)),
				zap.Uint64("readings", m.Readings),
				zap.Uint64("finite", m.FiniteCount),
				zap.Float64("avg_ns", m.AvgLatency),
				zap.Float64("min_ns", m.MinLatency),
				zap.Float64("max_ns", m.MaxLatency),
				zap.Float64("p50_ns", m.P50Latency),
				zap.Float64("p95_ns", m.P95Latency),
				zap.Float64("p99_ns", m.P99Latency),
				zap.Uint64("wraps", m.CounterWraps),
			)
		}

		ack := map[string]string{
			"status":    "received",
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if err := conn.WriteJSON(ack); err != nil {
			log.Warn("write failed", zap.Error(err))
			break
		}
	}

	log.Info("agent disconnected")
}

func main() {
	var listen, path string

	cmd := &cobra.Command{
		Use:          "latency-sink",
		Short:        "Receive and log chalat window summaries",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			mux := http.NewServeMux()
			mux.Handle(path, newSink(log))
			server := &http.Server{
				Addr:              listen,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			log.Info("listening", zap.String("addr", listen), zap.String("path", path))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "address to listen on")
	cmd.Flags().StringVar(&path, "path", "/monitoring", "websocket endpoint path")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
