package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/OriD-19/chalat/internal/diag"
	"github.com/OriD-19/chalat/internal/engine"
	"github.com/OriD-19/chalat/internal/msr"
	"github.com/OriD-19/chalat/internal/tsc"
	"github.com/OriD-19/chalat/internal/uncore"
)

var examples = []string{
	"  Stream latency from the current core:      $ chalat",
	"  Pin to core 3, ten readings, 500ms apart:  $ chalat --cpu 3 --count 10 --interval 500ms",
	"  Export to Prometheus and a sink:           $ chalat --metrics-addr :9105 --server ws://host:8080/monitoring",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:          "chalat",
		Short:        "Stream local and remote memory latency derived from CHA uncore counters",
		Example:      strings.Join(examples, "\n"),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := cfg.LoadFile(configPath, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer log.Sync()

			// from here on errors go through zap only
			cmd.SilenceErrors = true
			if err := run(cfg, log); err != nil {
				log.Error("setup failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cfg.BindFlags(cmd.Flags())
	return cmd
}

// run sets up the agent and samples on the calling goroutine, which is
// pinned to the sampled core for the rest of the process
func run(cfg Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rep := diag.NewReporter(log.Named("diag"), rate.NewLimiter(rate.Limit(cfg.DiagRate), cfg.DiagBurst), reg)

	core := cfg.CPU
	if core < 0 {
		var err error
		if core, err = tsc.CoreID(); err != nil {
			return fmt.Errorf("core id: %w", err)
		}
	}
	if host, err := probeHost(); err != nil {
		log.Warn("host probe failed", zap.Error(err))
	} else if err := checkHost(host, core, log); err != nil {
		return err
	}
	if err := tsc.Pin(core); err != nil {
		return err
	}

	ch, err := msr.Open(cfg.MSRDir, core)
	if err != nil {
		return err
	}
	defer ch.Close()
	watchSignals(ch, log)

	var out io.Writer = os.Stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	sinks := []engine.Sink{NewPrometheusSink(reg)}
	if cfg.MetricsAddr != "" {
		server := serveMetrics(cfg.MetricsAddr, reg, log.Named("metrics"))
		defer server.Close()
	}
	if cfg.ServerURL != "" {
		export := startSummaryExport(cfg, core, log.Named("websocket"))
		defer export.Close()
		sinks = append(sinks, export.agg)
	}

	loop := engine.New(ch, tsc.Hardware{}, out, engine.Config{
		Layout:       uncore.IcelakeX,
		Units:        cfg.Boxes,
		CounterWidth: cfg.CounterWidth,
		Interval:     time.Duration(cfg.Interval),
		TSCHz:        cfg.TSCFrequencyHz,
		UncoreHz:     cfg.UncoreFrequencyHz,
		Count:        cfg.Count,
	},
		engine.WithLogger(log.Named("engine")),
		engine.WithReporter(rep),
		engine.WithSinks(sinks...),
	)

	log.Info("starting", zap.Int("cpu", core), zap.String("device", msr.Path(cfg.MSRDir, core)), zap.String("clock", tsc.Name))
	if err := loop.Init(); err != nil {
		return err
	}
	return loop.Run(context.Background())
}

// terminationSignals end the run with status 0; other signals keep their
// default disposition
var terminationSignals = []os.Signal{os.Interrupt}

// watchSignals exits the process on an interrupt. Counters stay programmed;
// only the register channel is released.
func watchSignals(ch msr.Channel, log *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, terminationSignals...)
	go func() {
		s := <-sigs
		log.Info("terminating", zap.Stringer("signal", s))
		if err := ch.Close(); err != nil {
			log.Warn("closing register channel", zap.Error(err))
		}
		_ = log.Sync()
		os.Exit(0)
	}()
}
