// Package uncore programs and samples the CHA (caching/home agent) PMON
// counters and turns TOR occupancy/insert deltas into a latency estimate.
package uncore

import "fmt"

// Slots used on every CHA
const (
	SlotOccupancy  = 0
	SlotInserts    = 1
	SlotClockticks = 2
)

// Paired units: the even box observes local DRAM, the odd box remote
const (
	LocalUnit  = 0
	RemoteUnit = 1
)

// PlatformInfo is MSR_PLATFORM_INFO; bits 15:8 hold the TSC ratio
const PlatformInfo uint32 = 0xCE

// BusClockHz is the reference clock the platform ratio multiplies
const BusClockHz = 100_000_000

// Layout places CHA registers in the MSR index space. Per-box registers sit at
// base + stride*box, per-counter registers at base + stride*box + slot.
type Layout struct {
	Name       string
	CtlBase    uint32
	FilterBase uint32
	StatusBase uint32
	CtrBase    uint32
	Stride     uint32
	Boxes      int
	Counters   int
}

// IcelakeX is the 3rd gen Xeon Scalable layout. Boxes past 18 use a different
// offset scheme and are not addressed.
var IcelakeX = Layout{
	Name:       "icx",
	CtlBase:    0x0E01,
	FilterBase: 0x0E05,
	StatusBase: 0x0E07,
	CtrBase:    0x0E08,
	Stride:     0x0E,
	Boxes:      18,
	Counters:   4,
}

// RegisterOffset computes the MSR index of slot on unit
func RegisterOffset(unit, slot int, base, stride uint32) uint32 {
	return base + stride*uint32(unit) + uint32(slot)
}

// Ctl is the control register binding an event to slot
func (l Layout) Ctl(unit, slot int) uint32 {
	return RegisterOffset(unit, slot, l.CtlBase, l.Stride)
}

// Ctr is the counter register of slot
func (l Layout) Ctr(unit, slot int) uint32 {
	return RegisterOffset(unit, slot, l.CtrBase, l.Stride)
}

// Filter is the unit's FILTER0 register
func (l Layout) Filter(unit int) uint32 {
	return RegisterOffset(unit, 0, l.FilterBase, l.Stride)
}

// Status is the unit's overflow status register
func (l Layout) Status(unit int) uint32 {
	return RegisterOffset(unit, 0, l.StatusBase, l.Stride)
}

func (l Layout) checkUnit(unit int) error {
	if unit < 0 || unit >= l.Boxes {
		return fmt.Errorf("%s: unit %d out of range [0,%d)", l.Name, unit, l.Boxes)
	}
	return nil
}
