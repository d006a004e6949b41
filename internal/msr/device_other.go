//go:build !linux

package msr

import (
	"errors"
	"fmt"
)

// Device is only available on linux
type Device struct{}

// Open always fails outside linux
func Open(dir string, cpu int) (*Device, error) {
	return nil, fmt.Errorf("open %s: %w", Path(dir, cpu), errors.ErrUnsupported)
}

func (d *Device) CPU() int                           { return -1 }
func (d *Device) Read(reg uint32) (uint64, error)    { return 0, errors.ErrUnsupported }
func (d *Device) Write(reg uint32, val uint64) error { return errors.ErrUnsupported }
func (d *Device) Close() error                       { return nil }
