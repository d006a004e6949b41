//go:build amd64

package tsc

import "github.com/dterei/gotsc"

// Hardware reads the time stamp counter with RDTSCP
type Hardware struct{}

// Name of the instruction behind Hardware
const Name = "rdtscp"

// Now returns the TSC. RDTSCP waits for prior loads to retire, so a counter
// read issued just before is ordered ahead of the timestamp.
func (Hardware) Now() uint64 {
	return gotsc.BenchEnd()
}
