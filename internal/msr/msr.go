// Package msr gives indexed 64-bit access to a core's model specific registers.
package msr

import (
	"errors"
	"path/filepath"
	"strconv"
)

const (
	// DefaultDir is where the msr driver exposes one device per logical CPU
	DefaultDir = "/dev/cpu"

	fileName = "msr"
	regSize  = 8
)

// ErrShortTransfer is returned when a register access moves fewer than 8 bytes
var ErrShortTransfer = errors.New("msr: short transfer")

// Reader reads a register by index
type Reader interface {
	Read(reg uint32) (uint64, error)
}

// Writer writes a register by index
type Writer interface {
	Write(reg uint32, val uint64) error
}

// Channel is a scoped handle to one core's register interface. Close must be
// called on every exit path.
type Channel interface {
	Reader
	Writer
	Close() error
}

// Path returns the device path for cpu under dir
func Path(dir string, cpu int) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strconv.Itoa(cpu), fileName)
}
