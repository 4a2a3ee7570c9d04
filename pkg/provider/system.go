// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

const defaultGPUQueryTimeout = 2 * time.Second

// System reads counters from the local host via gopsutil.
type System struct {
	diskPath        string
	gpuQueryTimeout time.Duration
	gpuQuery        func(ctx context.Context) (*GPUStat, error)

	// Process handles are kept between scans: gopsutil measures a
	// process's current CPU load against the times cached on its handle.
	procMu sync.Mutex
	procs  map[int32]*process.Process
}

// NewSystem creates a provider reporting disk usage for diskPath.
func NewSystem(diskPath string) *System {
	s := &System{
		diskPath:        diskPath,
		gpuQueryTimeout: defaultGPUQueryTimeout,
		procs:           make(map[int32]*process.Process),
	}
	s.gpuQuery = s.queryNvidiaSMI
	return s
}

// CPU returns total utilization since the previous call.
func (s *System) CPU(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to get CPU percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, errors.New("no CPU percent reported")
	}
	return percents[0], nil
}

func (s *System) Memory(ctx context.Context) (MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStat{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	return MemoryStat{Used: vm.Used, Total: vm.Total}, nil
}

func (s *System) Disk(ctx context.Context) (DiskStat, error) {
	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return DiskStat{}, fmt.Errorf("failed to get disk usage of %s: %w", s.diskPath, err)
	}
	return DiskStat{Used: usage.Used, Total: usage.Total}, nil
}

func (s *System) GPU(ctx context.Context) (*GPUStat, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gpuQueryTimeout)
	defer cancel()
	return s.gpuQuery(ctx)
}

// Processes lists processes; entries that vanish mid-scan are skipped.
// CPU is the load since the previous scan, so a process seen for the first
// time reports 0.
func (s *System) Processes(ctx context.Context) ([]ProcessSample, error) {
	listed, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()
	procs := s.track(listed)

	samples := make([]ProcessSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cpuPct, err := p.PercentWithContext(ctx, 0)
		if err != nil || cpuPct < 0 {
			cpuPct = 0
		}
		memPct, _ := p.MemoryPercentWithContext(ctx)
		var rss uint64
		if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
			rss = info.RSS
		}
		samples = append(samples, ProcessSample{
			PID:        int(p.Pid),
			Name:       name,
			CPU:        cpuPct,
			MemRSS:     rss,
			MemPercent: float64(memPct),
		})
	}
	return samples, nil
}

// track swaps freshly listed processes for the handles of earlier scans and
// forgets processes that are gone. procMu must be held.
func (s *System) track(listed []*process.Process) []*process.Process {
	seen := make(map[int32]*process.Process, len(listed))
	out := make([]*process.Process, 0, len(listed))
	for _, p := range listed {
		if known, ok := s.procs[p.Pid]; ok {
			p = known
		}
		seen[p.Pid] = p
		out = append(out, p)
	}
	s.procs = seen
	return out
}
