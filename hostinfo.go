package main

import (
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.uber.org/zap"
)

const intelVendor = "GenuineIntel"

// HostInfo is what the agent needs to know about the processor
type HostInfo struct {
	Vendor      string
	Model       string
	LogicalCPUs int
	// Online lists the processor numbers the kernel reports; it can have gaps
	Online []int
}

// probeHost reads processor identity through gopsutil
func probeHost() (HostInfo, error) {
	infos, err := cpu.Info()
	if err != nil {
		return HostInfo{}, fmt.Errorf("cpu info: %w", err)
	}
	n, err := cpu.Counts(true)
	if err != nil {
		return HostInfo{}, fmt.Errorf("cpu count: %w", err)
	}
	h := HostInfo{LogicalCPUs: n}
	if len(infos) > 0 {
		h.Vendor = infos[0].VendorID
		h.Model = infos[0].ModelName
	}
	// some platforms report one entry per package instead of per processor
	if len(infos) == n {
		for _, info := range infos {
			h.Online = append(h.Online, int(info.CPU))
		}
	}
	return h, nil
}

// checkHost rejects a core outside the machine and warns when the CHA
// register map is unlikely to apply
func checkHost(h HostInfo, core int, log *zap.Logger) error {
	if len(h.Online) > 0 && !slices.Contains(h.Online, core) {
		return fmt.Errorf("cpu %d is not online, online cpus: %v", core, h.Online)
	}
	if h.Vendor != intelVendor {
		log.Warn("CHA registers are Intel specific, readings may be meaningless",
			zap.String("vendor", h.Vendor), zap.String("model", h.Model))
		return nil
	}
	log.Info("host", zap.String("model", h.Model), zap.Int("logical_cpus", h.LogicalCPUs))
	return nil
}
