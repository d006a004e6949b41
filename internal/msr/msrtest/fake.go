// Package msrtest provides an in-memory register file for tests
package msrtest

import (
	"fmt"
	"sync"

	"github.com/OriD-19/chalat/internal/msr"
)

// Write records one register write
type Write struct {
	Reg uint32
	Val uint64
}

// Fake is an msr.Channel backed by a map. Reads of a register with a scripted
// sequence pop the next value; once the script runs out the last stored value
// is returned.
type Fake struct {
	mu        sync.Mutex
	regs      map[uint32]uint64
	scripts   map[uint32][]uint64
	failRead  map[uint32]bool
	failOnce  map[uint32]bool
	failWrite map[uint32]bool
	writes    []Write
	reads     int
	closed    bool
}

var _ msr.Channel = (*Fake)(nil)

// New returns an empty register file
func New() *Fake {
	return &Fake{
		regs:      make(map[uint32]uint64),
		scripts:   make(map[uint32][]uint64),
		failRead:  make(map[uint32]bool),
		failOnce:  make(map[uint32]bool),
		failWrite: make(map[uint32]bool),
	}
}

// Set stores a register value without recording a write
func (f *Fake) Set(reg uint32, val uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[reg] = val
}

// Script queues values returned by successive reads of reg
func (f *Fake) Script(reg uint32, vals ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[reg] = append(f.scripts[reg], vals...)
}

// FailRead makes reads of reg report a short transfer
func (f *Fake) FailRead(reg uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRead[reg] = true
}

// FailReadOnce makes only the next read of reg report a short transfer
func (f *Fake) FailReadOnce(reg uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[reg] = true
}

// FailWrite makes writes of reg report a short transfer
func (f *Fake) FailWrite(reg uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrite[reg] = true
}

func (f *Fake) Read(reg uint32) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead[reg] || f.failOnce[reg] {
		delete(f.failOnce, reg)
		return 0, fmt.Errorf("read msr %#x: %w", reg, msr.ErrShortTransfer)
	}
	if q := f.scripts[reg]; len(q) > 0 {
		f.regs[reg] = q[0]
		f.scripts[reg] = q[1:]
	}
	return f.regs[reg], nil
}

func (f *Fake) Write(reg uint32, val uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite[reg] {
		return fmt.Errorf("write msr %#x: %w", reg, msr.ErrShortTransfer)
	}
	f.regs[reg] = val
	f.writes = append(f.writes, Write{Reg: reg, Val: val})
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Get returns the stored value of reg
func (f *Fake) Get(reg uint32) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// Registers returns a copy of the register file
func (f *Fake) Registers() map[uint32]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint32]uint64, len(f.regs))
	for k, v := range f.regs {
		out[k] = v
	}
	return out
}

// Writes returns the recorded writes in order
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Reads returns how many reads were issued
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
