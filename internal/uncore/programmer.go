package uncore

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/diag"
	"github.com/OriD-19/chalat/internal/msr"
)

// Programmer writes event selections into CHA control registers
type Programmer struct {
	ch     msr.Writer
	layout Layout
	diag   *diag.Reporter
	log    *zap.Logger
}

// NewProgrammer returns a Programmer writing through ch
func NewProgrammer(ch msr.Writer, layout Layout, rep *diag.Reporter, log *zap.Logger) *Programmer {
	return &Programmer{ch: ch, layout: layout, diag: rep, log: log}
}

type regWrite struct {
	name string
	reg  uint32
	val  uint64
}

// Configure clears the unit's filter and binds slot 0 to TOR occupancy, slot 1
// to TOR inserts (both scoped by the unit's parity) and slot 2 to clockticks.
//
// Writes are best effort: a failed write is reported and the remaining ones
// still go out. The returned error combines every failure.
func (p *Programmer) Configure(unit int) error {
	if err := p.layout.checkUnit(unit); err != nil {
		return err
	}
	scope := ScopeOf(unit)
	writes := []regWrite{
		{"filter0", p.layout.Filter(unit), 0},
		{"ctl0", p.layout.Ctl(unit, SlotOccupancy), Occupancy(scope).Word()},
		{"ctl1", p.layout.Ctl(unit, SlotInserts), Inserts(scope).Word()},
		{"ctl2", p.layout.Ctl(unit, SlotClockticks), Clockticks().Word()},
	}

	var errs error
	for _, w := range writes {
		if err := p.ch.Write(w.reg, w.val); err != nil {
			p.diag.Report(diag.KindWrite, err,
				zap.Int("unit", unit),
				zap.String("register", w.name),
				zap.String("msr", fmt.Sprintf("%#x", w.reg)))
			errs = multierr.Append(errs, fmt.Errorf("unit %d %s: %w", unit, w.name, err))
		}
	}
	if errs == nil {
		p.log.Debug("unit configured", zap.Int("unit", unit), zap.Stringer("scope", scope))
	}
	return errs
}

// ConfigureAll configures units 0..n-1 and keeps going past failures
func (p *Programmer) ConfigureAll(n int) error {
	var errs error
	for unit := 0; unit < n; unit++ {
		errs = multierr.Append(errs, p.Configure(unit))
	}
	return errs
}
