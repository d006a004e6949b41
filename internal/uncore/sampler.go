package uncore

import (
	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/diag"
	"github.com/OriD-19/chalat/internal/msr"
	"github.com/OriD-19/chalat/internal/tsc"
)

// Sample is a counter value and the TSC read right after it. Failed marks a
// value that came back from a failed read.
type Sample struct {
	Value  uint64
	TSC    uint64
	Failed bool
}

// State holds the two most recent samples of every counter slot
type State struct {
	cur  [][]Sample
	prev [][]Sample
}

// NewState sizes the history for units x slots
func NewState(units, slots int) *State {
	s := &State{
		cur:  make([][]Sample, units),
		prev: make([][]Sample, units),
	}
	for u := range s.cur {
		s.cur[u] = make([]Sample, slots)
		s.prev[u] = make([]Sample, slots)
	}
	return s
}

func (s *State) push(unit, slot int, smp Sample) {
	s.prev[unit][slot] = s.cur[unit][slot]
	s.cur[unit][slot] = smp
}

// Current returns the newest sample of a slot
func (s *State) Current(unit, slot int) Sample { return s.cur[unit][slot] }

// Previous returns the sample before Current
func (s *State) Previous(unit, slot int) Sample { return s.prev[unit][slot] }

// Delta is the counter increase between the two retained samples
func (s *State) Delta(unit, slot int, width uint) uint64 {
	return Delta(width, s.cur[unit][slot].Value, s.prev[unit][slot].Value)
}

// Wrapped reports whether the counter went through zero since Previous. A
// pair involving a failed read is never a wrap.
func (s *State) Wrapped(unit, slot int) bool {
	cur, prev := s.cur[unit][slot], s.prev[unit][slot]
	if cur.Failed || prev.Failed {
		return false
	}
	return Wrapped(cur.Value, prev.Value)
}

// Sampler reads CHA counters and stamps them with the TSC
type Sampler struct {
	ch     msr.Reader
	layout Layout
	clock  tsc.Source
	diag   *diag.Reporter
}

// NewSampler returns a Sampler reading through ch
func NewSampler(ch msr.Reader, layout Layout, clock tsc.Source, rep *diag.Reporter) *Sampler {
	return &Sampler{ch: ch, layout: layout, clock: clock, diag: rep}
}

// Sample reads the slot, timestamps it and shifts it into st. A failed read is
// reported and whatever value came back is stored anyway.
func (s *Sampler) Sample(st *State, unit, slot int) error {
	val, err := s.ch.Read(s.layout.Ctr(unit, slot))
	now := s.clock.Now()
	st.push(unit, slot, Sample{Value: val, TSC: now, Failed: err != nil})
	if err != nil {
		s.diag.Report(diag.KindRead, err, zap.Int("unit", unit), zap.Int("slot", slot))
		return err
	}
	return nil
}
