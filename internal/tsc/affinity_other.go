//go:build !linux

package tsc

import "errors"

func CoreID() (int, error) { return -1, errors.ErrUnsupported }

func Pin(cpu int) error { return errors.ErrUnsupported }
