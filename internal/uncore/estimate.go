package uncore

import (
	"fmt"

	"github.com/OriD-19/chalat/internal/msr"
)

// DefaultCounterWidth is the width of Ice Lake CHA counters
const DefaultCounterWidth = 48

// Mask returns the value mask of a width-bit counter
func Mask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<width - 1
}

// Delta is cur-prev modulo 2^width. One wrap between the samples is absorbed;
// more than one cannot be detected.
func Delta(width uint, cur, prev uint64) uint64 {
	return (cur - prev) & Mask(width)
}

// Wrapped reports whether a counter passed through zero between prev and cur
func Wrapped(cur, prev uint64) bool {
	return cur < prev
}

// Estimate applies Little's law to the unit's occupancy and insert deltas:
// mean outstanding requests over arrivals is mean residency in cycles. A zero
// insert delta yields NaN or +Inf, which is returned as is.
func Estimate(st *State, unit int, width uint, nsPerCycle float64) float64 {
	occ := st.Delta(unit, SlotOccupancy, width)
	ins := st.Delta(unit, SlotInserts, width)
	return float64(occ) / float64(ins) * nsPerCycle
}

// TSCFrequency derives the TSC rate from the platform ratio register
func TSCFrequency(r msr.Reader) (uint64, error) {
	val, err := r.Read(PlatformInfo)
	if err != nil {
		return 0, fmt.Errorf("read platform info: %w", err)
	}
	ratio := (val >> 8) & 0xff
	if ratio == 0 {
		return 0, fmt.Errorf("platform info %#x reports a zero tsc ratio", val)
	}
	return ratio * BusClockHz, nil
}

// NsPerCycle converts a frequency in Hz into nanoseconds per cycle
func NsPerCycle(hz uint64) float64 {
	return 1e9 / float64(hz)
}
