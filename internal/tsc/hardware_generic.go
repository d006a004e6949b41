//go:build !amd64

package tsc

import "time"

var epoch = time.Now()

// Hardware falls back to the monotonic clock at 1 GHz where no TSC is available
type Hardware struct{}

// Name of the clock behind Hardware
const Name = "monotonic"

func (Hardware) Now() uint64 {
	return uint64(time.Since(epoch).Nanoseconds())
}
