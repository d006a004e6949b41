// Package engine drives the sampling loop: program the CHA counters once, then
// spin on the TSC and emit a local/remote latency pair every interval.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/diag"
	"github.com/OriD-19/chalat/internal/msr"
	"github.com/OriD-19/chalat/internal/tsc"
	"github.com/OriD-19/chalat/internal/uncore"
)

// ErrNotInitialized is returned by Run before Init has succeeded
var ErrNotInitialized = errors.New("engine: loop not initialized")

// Phase of the loop state machine
type Phase int

const (
	Initializing Phase = iota
	Sampling
)

func (p Phase) String() string {
	if p == Sampling {
		return "sampling"
	}
	return "initializing"
}

// Reading is the result of one sampling pass
type Reading struct {
	Seq    uint64
	TSC    uint64
	Time   time.Time
	Local  float64
	Remote float64
	Wraps  int
}

// Sink observes every reading after it has been written. Observe runs on the
// sampling thread and must not block.
type Sink interface {
	Observe(r Reading)
}

// Config fixes the loop's hardware parameters
type Config struct {
	Layout       uncore.Layout
	Units        int
	CounterWidth uint
	Interval     time.Duration
	// TSCHz of 0 reads the platform ratio register
	TSCHz uint64
	// UncoreHz of 0 reuses the TSC frequency
	UncoreHz uint64
	// Count stops Run after that many readings; 0 runs until ctx is done
	Count uint64
}

// Option customizes a Loop
type Option func(*Loop)

// WithLogger sets the diagnostic logger
func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithReporter sets the diagnostic reporter
func WithReporter(rep *diag.Reporter) Option {
	return func(l *Loop) { l.diag = rep }
}

// WithSinks adds reading observers
func WithSinks(sinks ...Sink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

// Loop owns the sample history and pacing marker. It is not safe for
// concurrent use.
type Loop struct {
	cfg   Config
	ch    msr.Channel
	clock tsc.Source
	out   *TextWriter
	log   *zap.Logger
	diag  *diag.Reporter
	sinks []Sink

	prog    *uncore.Programmer
	sampler *uncore.Sampler
	state   *uncore.State
	pacer   *Pacer

	tscHz      uint64
	nsPerCycle float64
	phase      Phase
	seq        uint64
}

// New builds a loop reading through ch, timed by clock and writing to out
func New(ch msr.Channel, clock tsc.Source, out io.Writer, cfg Config, opts ...Option) *Loop {
	if cfg.CounterWidth == 0 {
		cfg.CounterWidth = uncore.DefaultCounterWidth
	}
	l := &Loop{
		cfg:   cfg,
		ch:    ch,
		clock: clock,
		out:   NewTextWriter(out),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.diag == nil {
		l.diag = diag.Nop()
	}
	l.prog = uncore.NewProgrammer(ch, cfg.Layout, l.diag, l.log.Named("uncore"))
	l.sampler = uncore.NewSampler(ch, cfg.Layout, clock, l.diag)
	l.state = uncore.NewState(cfg.Layout.Boxes, cfg.Layout.Counters)
	return l
}

// Phase returns the current state
func (l *Loop) Phase() Phase { return l.phase }

// NsPerCycle is the conversion factor fixed by Init
func (l *Loop) NsPerCycle() float64 { return l.nsPerCycle }

// TSCHz is the pacing clock rate fixed by Init
func (l *Loop) TSCHz() uint64 { return l.tscHz }

// Init programs the counters, takes the priming sample, fixes the conversion
// factor and interval, and writes the header.
func (l *Loop) Init() error {
	if l.phase != Initializing {
		return errors.New("engine: loop already initialized")
	}

	tscHz := l.cfg.TSCHz
	if tscHz == 0 {
		hz, err := uncore.TSCFrequency(l.ch)
		if err != nil {
			return fmt.Errorf("tsc frequency: %w", err)
		}
		tscHz = hz
	}
	uncoreHz := l.cfg.UncoreHz
	if uncoreHz == 0 {
		uncoreHz = tscHz
	}
	l.tscHz = tscHz
	l.nsPerCycle = uncore.NsPerCycle(uncoreHz)
	l.pacer = NewPacer(l.clock, IntervalCycles(l.cfg.Interval, tscHz))
	if l.pacer.Interval() == 0 {
		return fmt.Errorf("interval %s is shorter than one cycle at %d Hz", l.cfg.Interval, tscHz)
	}

	if err := l.prog.ConfigureAll(l.cfg.Units); err != nil {
		l.log.Warn("counter programming incomplete, readings are best effort", zap.Error(err))
	}

	l.pacer.Mark(l.clock.Now())
	l.samplePass()

	if err := l.out.WriteHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	l.phase = Sampling
	l.log.Info("sampling",
		zap.Uint64("tsc_hz", tscHz),
		zap.Uint64("uncore_hz", uncoreHz),
		zap.Float64("ns_per_cycle", l.nsPerCycle),
		zap.Uint64("interval_cycles", l.pacer.Interval()),
		zap.Int("units", l.cfg.Units))
	return nil
}

// Run spins until ctx is done or Count readings have been emitted
func (l *Loop) Run(ctx context.Context) error {
	if l.phase != Sampling {
		return ErrNotInitialized
	}
	for {
		now, err := l.pacer.SpinUntilDue(ctx)
		if err != nil {
			return err
		}
		r := l.step(now)
		if l.cfg.Count > 0 && r.Seq >= l.cfg.Count {
			return nil
		}
	}
}

func (l *Loop) samplePass() {
	for _, unit := range [...]int{uncore.LocalUnit, uncore.RemoteUnit} {
		_ = l.sampler.Sample(l.state, unit, uncore.SlotOccupancy)
		_ = l.sampler.Sample(l.state, unit, uncore.SlotInserts)
	}
}

func (l *Loop) step(now uint64) Reading {
	l.samplePass()

	r := Reading{
		Seq:    l.seq + 1,
		TSC:    now,
		Time:   time.Now(),
		Local:  uncore.Estimate(l.state, uncore.LocalUnit, l.cfg.CounterWidth, l.nsPerCycle),
		Remote: uncore.Estimate(l.state, uncore.RemoteUnit, l.cfg.CounterWidth, l.nsPerCycle),
		Wraps:  l.countWraps(),
	}
	if err := l.out.WriteReading(r.Local, r.Remote); err != nil {
		l.diag.Report(diag.KindOutput, err, zap.Uint64("seq", r.Seq))
	}
	for _, s := range l.sinks {
		s.Observe(r)
	}

	l.pacer.Mark(now)
	l.seq = r.Seq
	return r
}

func (l *Loop) countWraps() int {
	n := 0
	for _, unit := range [...]int{uncore.LocalUnit, uncore.RemoteUnit} {
		for _, slot := range [...]int{uncore.SlotOccupancy, uncore.SlotInserts} {
			if l.state.Wrapped(unit, slot) {
				n++
				l.diag.Report(diag.KindWrap, nil, zap.Int("unit", unit), zap.Int("slot", slot))
			}
		}
	}
	return n
}
