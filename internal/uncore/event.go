package uncore

// CHA event selects
const (
	EventClockticks   = 0x00
	EventTORInserts   = 0x35
	EventTOROccupancy = 0x36
)

// UmaskIA selects requests from cores
const UmaskIA = 0x01

// Extended umask for TOR events: DRd opcode, LLC miss. The scope bits below
// pick which home the request targets.
const (
	UmaskExtDRdMiss = 0x00c81606
	ScopeLocalBit   = 1 << 7
	ScopeRemoteBit  = 1 << 8
)

const (
	ctlEnable     = 1 << 22
	umaskShift    = 8
	umaskExtShift = 32
)

// Scope is where a monitored request's memory lives
type Scope int

const (
	Local Scope = iota
	Remote
)

// ScopeOf maps a unit to its scope: even units local, odd units remote
func ScopeOf(unit int) Scope {
	if unit%2 == 0 {
		return Local
	}
	return Remote
}

func (s Scope) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

func (s Scope) bit() uint32 {
	if s == Local {
		return ScopeLocalBit
	}
	return ScopeRemoteBit
}

// Event is the decoded form of a CHA counter control word
type Event struct {
	Select   uint8
	Umask    uint8
	UmaskExt uint32
	Enable   bool
}

// Word encodes the event as written to the control register
func (e Event) Word() uint64 {
	w := uint64(e.Select) | uint64(e.Umask)<<umaskShift | uint64(e.UmaskExt)<<umaskExtShift
	if e.Enable {
		w |= ctlEnable
	}
	return w
}

// Occupancy counts outstanding TOR entries of DRd misses in scope, per cycle
func Occupancy(s Scope) Event {
	return Event{Select: EventTOROccupancy, Umask: UmaskIA, UmaskExt: UmaskExtDRdMiss | s.bit(), Enable: true}
}

// Inserts counts DRd misses entering the TOR in scope
func Inserts(s Scope) Event {
	return Event{Select: EventTORInserts, Umask: UmaskIA, UmaskExt: UmaskExtDRdMiss | s.bit(), Enable: true}
}

// Clockticks counts uncore clocks of the box
func Clockticks() Event {
	return Event{Select: EventClockticks, Enable: true}
}
