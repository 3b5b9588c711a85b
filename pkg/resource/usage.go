// Package resource samples the host process's CPU and memory usage for
// inclusion in sync payloads.
package resource

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time process resource reading.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// Sampler reads CPU and memory usage of the current process. The first
// interval is suppressed because CPU percent needs a prior observation
// to be meaningful.
type Sampler struct {
	mu    sync.Mutex
	proc  *process.Process
	first bool
}

func NewSampler() (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	// Prime the CPU counters so the next Sample has a reference point.
	_, _ = proc.Percent(0)
	return &Sampler{proc: proc, first: true}, nil
}

// Sample returns the current usage, or nil on the first interval or when
// the reading fails.
func (s *Sampler) Sample() *Usage {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cpuPercent, err := s.proc.Percent(0)
	if err != nil {
		return nil
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return nil
	}
	if s.first {
		s.first = false
		return nil
	}
	return &Usage{CPUPercent: cpuPercent, MemoryRSS: memInfo.RSS}
}
