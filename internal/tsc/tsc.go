// Package tsc exposes the free-running cycle counter used for timestamps and
// pacing, plus the affinity helpers that keep readings on one core.
package tsc

import "sync/atomic"

// Source is a monotonic free-running cycle count
type Source interface {
	Now() uint64
}

// Manual is a Source driven by tests. Every Now advances the count by Step,
// which simulates the cycles a caller spends between reads.
type Manual struct {
	now  atomic.Uint64
	step uint64
}

// NewManual starts at start and advances by step on every read
func NewManual(start, step uint64) *Manual {
	m := &Manual{step: step}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() uint64 {
	return m.now.Add(m.step) - m.step
}

// Advance moves the count forward by n cycles
func (m *Manual) Advance(n uint64) {
	m.now.Add(n)
}

// Peek returns the count without advancing it
func (m *Manual) Peek() uint64 {
	return m.now.Load()
}
