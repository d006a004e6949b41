//go:build linux

package tsc

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// maxCPU is CPU_SETSIZE
const maxCPU = 1024

// CoreID returns the lowest CPU in the calling thread's affinity mask. For a
// thread pinned to a single core that is the core it runs on.
func CoreID() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return -1, fmt.Errorf("sched_getaffinity: %w", err)
	}
	for cpu := 0; cpu < maxCPU; cpu++ {
		if set.IsSet(cpu) {
			return cpu, nil
		}
	}
	return -1, errors.New("sched_getaffinity: empty cpu set")
}

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to cpu. The goroutine stays locked for the rest of its life.
func Pin(cpu int) error {
	if cpu < 0 || cpu >= maxCPU {
		return fmt.Errorf("pin: cpu %d out of range", cpu)
	}
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
