package metrics

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// MemorySampler reports the memory in use by the running process.
type MemorySampler interface {
	SampleMB() (float64, error)
}

// ProcessSampler reads the resident set size of the current process.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open current process: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

func (s *ProcessSampler) SampleMB() (float64, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / bytesPerMB, nil
}

type HostInfo struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	LogicalCores    int     `json:"logical_cores"`
	TotalMemoryMB   float64 `json:"total_memory_mb"`
}

// GetHostInfo describes the machine a comparison runs on; it is logged at start up and
// published next to the summaries.
func GetHostInfo() (HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		return HostInfo{}, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostInfo{}, err
	}
	cores, err := cpu.Counts(true)
	if err != nil {
		return HostInfo{}, err
	}

	return HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		LogicalCores:    cores,
		TotalMemoryMB:   float64(vm.Total) / bytesPerMB,
	}, nil
}
