package engine

import (
	"context"
	"time"

	"github.com/OriD-19/chalat/internal/tsc"
)

// Pacer decides when the next sampling pass is due by spinning on a cycle
// counter instead of sleeping.
type Pacer struct {
	clock    tsc.Source
	interval uint64
	last     uint64
}

// NewPacer paces passes interval cycles apart
func NewPacer(clock tsc.Source, interval uint64) *Pacer {
	return &Pacer{clock: clock, interval: interval}
}

// IntervalCycles converts a wall interval into cycles of a hz counter
func IntervalCycles(d time.Duration, hz uint64) uint64 {
	return uint64(d.Seconds() * float64(hz))
}

// Interval returns the pass spacing in cycles
func (p *Pacer) Interval() uint64 { return p.interval }

// Last returns the timestamp of the last mark
func (p *Pacer) Last() uint64 { return p.last }

// Mark records now as the start of the current interval
func (p *Pacer) Mark(now uint64) { p.last = now }

// Due reports whether a full interval has elapsed since the last mark
func (p *Pacer) Due(now uint64) bool {
	return now-p.last >= p.interval
}

// SpinUntilDue busy-waits until a pass is due and returns the timestamp that
// crossed the boundary. It gives up only when ctx is done.
func (p *Pacer) SpinUntilDue(ctx context.Context) (uint64, error) {
	done := ctx.Done()
	for {
		now := p.clock.Now()
		if p.Due(now) {
			return now, nil
		}
		select {
		case <-done:
			return 0, ctx.Err()
		default:
		}
	}
}
