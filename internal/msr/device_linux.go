//go:build linux

package msr

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Device is a Channel backed by the msr character device of one CPU
type Device struct {
	cpu  int
	path string
	fd   int

	closeOnce sync.Once
	closeErr  error
}

// Open opens the register device of cpu under dir for reading and writing
func Open(dir string, cpu int) (*Device, error) {
	path := Path(dir, cpu)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{cpu: cpu, path: path, fd: fd}, nil
}

// CPU returns the logical CPU the device belongs to
func (d *Device) CPU() int { return d.cpu }

// Read returns the register value. On a short transfer the partially filled
// value is returned together with ErrShortTransfer.
func (d *Device) Read(reg uint32) (uint64, error) {
	var buf [regSize]byte
	n, err := unix.Pread(d.fd, buf[:], int64(reg))
	val := binary.LittleEndian.Uint64(buf[:])
	if err != nil {
		return val, fmt.Errorf("read msr %#x on cpu %d: %w", reg, d.cpu, err)
	}
	if n != regSize {
		return val, fmt.Errorf("read msr %#x on cpu %d: got %d bytes: %w", reg, d.cpu, n, ErrShortTransfer)
	}
	return val, nil
}

// Write stores val into the register
func (d *Device) Write(reg uint32, val uint64) error {
	var buf [regSize]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	n, err := unix.Pwrite(d.fd, buf[:], int64(reg))
	if err != nil {
		return fmt.Errorf("write msr %#x on cpu %d: %w", reg, d.cpu, err)
	}
	if n != regSize {
		return fmt.Errorf("write msr %#x on cpu %d: put %d bytes: %w", reg, d.cpu, n, ErrShortTransfer)
	}
	return nil
}

// Close releases the device. It is safe to call more than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		if err := unix.Close(d.fd); err != nil {
			d.closeErr = fmt.Errorf("close %s: %w", d.path, err)
		}
	})
	return d.closeErr
}
