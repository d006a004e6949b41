package uncore

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OriD-19/chalat/internal/diag"
	"github.com/OriD-19/chalat/internal/msr"
	"github.com/OriD-19/chalat/internal/msr/msrtest"
	"github.com/OriD-19/chalat/internal/tsc"
)

func TestRegisterOffset(t *testing.T) {
	tests := []struct {
		name       string
		unit, slot int
		base       uint32
		want       uint32
	}{
		{"ctl unit0 slot0", 0, 0, IcelakeX.CtlBase, 0x0E01},
		{"ctl unit1 slot2", 1, 2, IcelakeX.CtlBase, 0x0E11},
		{"ctr unit0 slot1", 0, 1, IcelakeX.CtrBase, 0x0E09},
		{"ctr unit1 slot0", 1, 0, IcelakeX.CtrBase, 0x0E16},
		{"filter unit17", 17, 0, IcelakeX.FilterBase, 0x0E05 + 0x0E*17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RegisterOffset(tt.unit, tt.slot, tt.base, IcelakeX.Stride))
		})
	}
	assert.Equal(t, uint32(0x0E15), IcelakeX.Status(1))
}

func TestEventWordsMatchReference(t *testing.T) {
	assert.Equal(t, uint64(0x00c8168600400136), Occupancy(Local).Word())
	assert.Equal(t, uint64(0x00c8170600400136), Occupancy(Remote).Word())
	assert.Equal(t, uint64(0x00c8168600400135), Inserts(Local).Word())
	assert.Equal(t, uint64(0x00c8170600400135), Inserts(Remote).Word())
	assert.Equal(t, uint64(0x400000), Clockticks().Word())
}

func TestScopeWordsDifferOnlyInScopeField(t *testing.T) {
	scopeField := uint64(ScopeLocalBit|ScopeRemoteBit) << umaskExtShift

	assert.Equal(t, Local, ScopeOf(0))
	assert.Equal(t, Remote, ScopeOf(1))
	for _, pair := range [][2]Event{
		{Occupancy(ScopeOf(0)), Occupancy(ScopeOf(1))},
		{Inserts(ScopeOf(0)), Inserts(ScopeOf(1))},
	} {
		even, odd := pair[0].Word(), pair[1].Word()
		assert.NotEqual(t, even, odd)
		assert.Zero(t, (even^odd)&^scopeField, "words differ outside the scope field")
		assert.NotZero(t, even&(ScopeLocalBit<<umaskExtShift))
		assert.NotZero(t, odd&(ScopeRemoteBit<<umaskExtShift))
	}
}

func TestConfigureWritesUnitRegisters(t *testing.T) {
	fake := msrtest.New()
	p := NewProgrammer(fake, IcelakeX, diag.Nop(), zap.NewNop())

	require.NoError(t, p.Configure(1))

	assert.Equal(t, []msrtest.Write{
		{Reg: 0x0E13, Val: 0},
		{Reg: 0x0E0F, Val: 0x00c8170600400136},
		{Reg: 0x0E10, Val: 0x00c8170600400135},
		{Reg: 0x0E11, Val: 0x400000},
	}, fake.Writes())
}

func TestConfigureIsIdempotent(t *testing.T) {
	once := msrtest.New()
	twice := msrtest.New()
	require.NoError(t, NewProgrammer(once, IcelakeX, diag.Nop(), zap.NewNop()).Configure(0))
	p := NewProgrammer(twice, IcelakeX, diag.Nop(), zap.NewNop())
	require.NoError(t, p.Configure(0))
	require.NoError(t, p.Configure(0))

	assert.Equal(t, once.Registers(), twice.Registers())
}

func TestConfigureContinuesPastFailedWrite(t *testing.T) {
	fake := msrtest.New()
	fake.FailWrite(IcelakeX.Ctl(0, SlotOccupancy))
	rep := diag.Nop()
	p := NewProgrammer(fake, IcelakeX, rep, zap.NewNop())

	err := p.Configure(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, msr.ErrShortTransfer)
	assert.Len(t, fake.Writes(), 3)
	assert.Equal(t, uint64(0x00c8168600400135), fake.Get(IcelakeX.Ctl(0, SlotInserts)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rep.Counter(diag.KindWrite)))
}

func TestConfigureRejectsUnknownUnit(t *testing.T) {
	fake := msrtest.New()
	p := NewProgrammer(fake, IcelakeX, diag.Nop(), zap.NewNop())
	assert.Error(t, p.Configure(IcelakeX.Boxes))
	assert.Empty(t, fake.Writes())
}

func TestConfigureAll(t *testing.T) {
	fake := msrtest.New()
	p := NewProgrammer(fake, IcelakeX, diag.Nop(), zap.NewNop())
	require.NoError(t, p.ConfigureAll(IcelakeX.Boxes))
	assert.Len(t, fake.Writes(), 4*IcelakeX.Boxes)
}

func TestSamplerShiftsHistory(t *testing.T) {
	fake := msrtest.New()
	reg := IcelakeX.Ctr(0, SlotOccupancy)
	fake.Script(reg, 100, 260, 400)
	s := NewSampler(fake, IcelakeX, tsc.NewManual(10, 1), diag.Nop())
	st := NewState(2, IcelakeX.Counters)

	require.NoError(t, s.Sample(st, 0, SlotOccupancy))
	require.NoError(t, s.Sample(st, 0, SlotOccupancy))
	assert.Equal(t, Sample{Value: 260, TSC: 11}, st.Current(0, SlotOccupancy))
	assert.Equal(t, Sample{Value: 100, TSC: 10}, st.Previous(0, SlotOccupancy))

	require.NoError(t, s.Sample(st, 0, SlotOccupancy))
	assert.Equal(t, uint64(140), st.Delta(0, SlotOccupancy, 64))
}

func TestSamplerStoresValueOnFailedRead(t *testing.T) {
	fake := msrtest.New()
	fake.FailRead(IcelakeX.Ctr(1, SlotInserts))
	rep := diag.Nop()
	s := NewSampler(fake, IcelakeX, tsc.NewManual(0, 1), rep)
	st := NewState(2, IcelakeX.Counters)
	st.push(1, SlotInserts, Sample{Value: 55, TSC: 1})

	err := s.Sample(st, 1, SlotInserts)
	assert.ErrorIs(t, err, msr.ErrShortTransfer)
	assert.Equal(t, uint64(55), st.Previous(1, SlotInserts).Value)
	assert.Equal(t, uint64(0), st.Current(1, SlotInserts).Value)
	assert.True(t, st.Current(1, SlotInserts).Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(rep.Counter(diag.KindRead)))
}

func TestFailedReadIsNotAWrap(t *testing.T) {
	fake := msrtest.New()
	reg := IcelakeX.Ctr(0, SlotInserts)
	fake.Script(reg, 500, 700)
	s := NewSampler(fake, IcelakeX, tsc.NewManual(0, 1), diag.Nop())
	st := NewState(2, IcelakeX.Counters)

	require.NoError(t, s.Sample(st, 0, SlotInserts))
	fake.FailReadOnce(reg)
	require.Error(t, s.Sample(st, 0, SlotInserts))
	assert.False(t, st.Wrapped(0, SlotInserts), "500 -> failed read")

	require.NoError(t, s.Sample(st, 0, SlotInserts))
	assert.False(t, st.Wrapped(0, SlotInserts), "failed read -> 700")

	fake.Script(reg, 100)
	require.NoError(t, s.Sample(st, 0, SlotInserts))
	assert.True(t, st.Wrapped(0, SlotInserts), "700 -> 100")
}

func TestDelta(t *testing.T) {
	assert.Equal(t, uint64(160), Delta(64, 260, 100))
	assert.Equal(t, uint64(0x30), Delta(48, 0x10, Mask(48)-0x1f))
	assert.Equal(t, uint64(0x30), Delta(64, 0x10, ^uint64(0)-0x1f))
	assert.True(t, Wrapped(0x10, 0xffff))
	assert.False(t, Wrapped(0x10, 0x10))
	assert.Equal(t, uint64(0xffffffffffff), Mask(48))
	assert.Equal(t, ^uint64(0), Mask(64))
}

func scriptedState(t *testing.T, occ, ins []uint64) *State {
	t.Helper()
	fake := msrtest.New()
	fake.Script(IcelakeX.Ctr(0, SlotOccupancy), occ...)
	fake.Script(IcelakeX.Ctr(0, SlotInserts), ins...)
	s := NewSampler(fake, IcelakeX, tsc.NewManual(0, 1), diag.Nop())
	st := NewState(2, IcelakeX.Counters)
	for range occ {
		require.NoError(t, s.Sample(st, 0, SlotOccupancy))
		require.NoError(t, s.Sample(st, 0, SlotInserts))
	}
	return st
}

func TestEstimateLittlesLaw(t *testing.T) {
	st := scriptedState(t, []uint64{100, 260}, []uint64{10, 26})
	assert.InDelta(t, 4.167, Estimate(st, 0, 64, 0.4167), 1e-9)
}

func TestEstimateMatchesReference(t *testing.T) {
	occ := []uint64{1_000, 91_000}
	ins := []uint64{7, 457}
	st := scriptedState(t, occ, ins)
	factor := NsPerCycle(2_400_000_000)
	want := float64(occ[1]-occ[0]) / float64(ins[1]-ins[0]) * factor
	assert.Equal(t, want, Estimate(st, 0, DefaultCounterWidth, factor))
}

func TestEstimateAcrossWrap(t *testing.T) {
	top := Mask(48)
	st := scriptedState(t, []uint64{top - 99, 60}, []uint64{top - 4, 11})
	assert.InDelta(t, 10.0, Estimate(st, 0, 48, 1), 1e-12)
}

func TestEstimateZeroInserts(t *testing.T) {
	st := scriptedState(t, []uint64{100, 260}, []uint64{10, 10})
	got := Estimate(st, 0, 64, 0.4167)
	assert.True(t, math.IsInf(got, 1))

	st = scriptedState(t, []uint64{100, 100}, []uint64{10, 10})
	got = Estimate(st, 0, 64, 0.4167)
	assert.True(t, math.IsNaN(got))
}

func TestTSCFrequency(t *testing.T) {
	fake := msrtest.New()
	fake.Set(PlatformInfo, 0x0000_0000_0000_1800)
	hz, err := TSCFrequency(fake)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_400_000_000), hz)

	fake.Set(PlatformInfo, 0x00ff)
	_, err = TSCFrequency(fake)
	assert.Error(t, err)
}
