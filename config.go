package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/OriD-19/chalat/internal/msr"
	"github.com/OriD-19/chalat/internal/uncore"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration that reads "1s"-style strings from YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds agent settings. Values come from defaults, then the YAML file,
// then flags given on the command line.
type Config struct {
	CPU               int      `yaml:"cpu"`
	Interval          Duration `yaml:"interval"`
	Count             uint64   `yaml:"count"`
	Output            string   `yaml:"output"`
	CounterWidth      uint     `yaml:"counter_width"`
	TSCFrequencyHz    uint64   `yaml:"tsc_frequency_hz"`
	UncoreFrequencyHz uint64   `yaml:"uncore_frequency_hz"`
	Boxes             int      `yaml:"boxes"`
	MSRDir            string   `yaml:"msr_dir"`
	MetricsAddr       string   `yaml:"metrics_addr"`
	ServerURL         string   `yaml:"server_url"`
	AgentID           string   `yaml:"agent_id"`
	Window            Duration `yaml:"window"`
	LogLevel          string   `yaml:"log_level"`
	LogFormat         string   `yaml:"log_format"`
	DiagRate          float64  `yaml:"diag_rate"`
	DiagBurst         int      `yaml:"diag_burst"`
}

// DefaultConfig mirrors the stock 1 s, 2.4 GHz uncore, Ice Lake setup
func DefaultConfig() Config {
	return Config{
		CPU:               -1,
		Interval:          Duration(time.Second),
		CounterWidth:      uncore.DefaultCounterWidth,
		UncoreFrequencyHz: 2_400_000_000,
		Boxes:             uncore.IcelakeX.Boxes,
		MSRDir:            msr.DefaultDir,
		Window:            Duration(10 * time.Second),
		LogLevel:          "info",
		LogFormat:         "console",
		DiagRate:          1,
		DiagBurst:         10,
	}
}

// BindFlags registers a flag for every field, defaulting to c's values
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.CPU, "cpu", c.CPU, "core to pin to and sample from (-1: current affinity)")
	fs.DurationVar((*time.Duration)(&c.Interval), "interval", time.Duration(c.Interval), "sampling interval")
	fs.Uint64Var(&c.Count, "count", c.Count, "stop after this many readings (0: run until interrupted)")
	fs.StringVarP(&c.Output, "output", "o", c.Output, "write the series to this file instead of stdout")
	fs.UintVar(&c.CounterWidth, "counter-width", c.CounterWidth, "CHA counter width in bits")
	fs.Uint64Var(&c.TSCFrequencyHz, "tsc-frequency", c.TSCFrequencyHz, "TSC rate in Hz (0: read MSR_PLATFORM_INFO)")
	fs.Uint64Var(&c.UncoreFrequencyHz, "uncore-frequency", c.UncoreFrequencyHz, "uncore clock in Hz for cycle to ns conversion (0: TSC rate)")
	fs.IntVar(&c.Boxes, "boxes", c.Boxes, "number of CHA boxes to program")
	fs.StringVar(&c.MSRDir, "msr-dir", c.MSRDir, "directory holding <cpu>/msr devices")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address (empty: off)")
	fs.StringVar(&c.ServerURL, "server", c.ServerURL, "websocket URL receiving window summaries (empty: off)")
	fs.StringVar(&c.AgentID, "agent-id", c.AgentID, "agent id in window summaries (empty: random)")
	fs.DurationVar((*time.Duration)(&c.Window), "window", time.Duration(c.Window), "window summary length")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "diagnostic log level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "diagnostic log format: console or json")
	fs.Float64Var(&c.DiagRate, "diag-rate", c.DiagRate, "diagnostic log lines per second")
	fs.IntVar(&c.DiagBurst, "diag-burst", c.DiagBurst, "diagnostic log burst")
}

// LoadFile merges a YAML file into c. Flags set on the command line keep
// their value.
func (c *Config) LoadFile(path string, fs *pflag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	set := map[string]string{}
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	for name, val := range set {
		if err := fs.Set(name, val); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks ranges and fills derived defaults
func (c *Config) Validate() error {
	var errs error
	if c.CPU < -1 {
		errs = multierr.Append(errs, fmt.Errorf("cpu %d must be -1 or a core number", c.CPU))
	}
	if c.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("interval %s must be positive", time.Duration(c.Interval)))
	}
	if c.CounterWidth == 0 || c.CounterWidth > 64 {
		errs = multierr.Append(errs, fmt.Errorf("counter width %d must be in 1..64", c.CounterWidth))
	}
	if c.Boxes < 2 || c.Boxes > uncore.IcelakeX.Boxes {
		errs = multierr.Append(errs, fmt.Errorf("boxes %d must be in 2..%d", c.Boxes, uncore.IcelakeX.Boxes))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = multierr.Append(errs, fmt.Errorf("log format %q must be console or json", c.LogFormat))
	}
	if c.DiagRate <= 0 || c.DiagBurst < 1 {
		errs = multierr.Append(errs, fmt.Errorf("diag rate %g and burst %d must be positive", c.DiagRate, c.DiagBurst))
	}
	if c.ServerURL != "" && c.Window <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("window %s must be positive", time.Duration(c.Window)))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	if c.AgentID == "" {
		c.AgentID = uuid.NewString()
	}
	return nil
}
