package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	err := execute(t, "--interval", "0s")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRootCmdRejectsArgs(t *testing.T) {
	assert.Error(t, execute(t, "extra"))
}

func TestRootCmdMissingConfigFile(t *testing.T) {
	err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOnlyInterruptTerminates(t *testing.T) {
	assert.Equal(t, []os.Signal{os.Interrupt}, terminationSignals)
}
