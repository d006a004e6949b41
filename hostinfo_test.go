package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCheckHost(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	intel := HostInfo{Vendor: "GenuineIntel", Model: "Xeon Gold 6338", LogicalCPUs: 8, Online: []int{0, 1, 2, 3, 4, 5, 6, 7}}
	assert.NoError(t, checkHost(intel, 7, log))
	assert.Error(t, checkHost(intel, 8, log))
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	amd := HostInfo{Vendor: "AuthenticAMD", LogicalCPUs: 8}
	assert.NoError(t, checkHost(amd, 0, log))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	assert.NoError(t, checkHost(HostInfo{Vendor: "GenuineIntel"}, 64, log), "unknown cpu set is not checked")
}

func TestCheckHostOfflineGaps(t *testing.T) {
	log := zap.NewNop()
	// cpus 2 and 3 offline: four online, numbered past the count
	h := HostInfo{Vendor: "GenuineIntel", LogicalCPUs: 4, Online: []int{0, 1, 4, 5}}

	assert.NoError(t, checkHost(h, 4, log))
	assert.NoError(t, checkHost(h, 5, log))
	assert.Error(t, checkHost(h, 2, log))
	assert.Error(t, checkHost(h, 6, log))
}
