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

package history

import (
	"time"

	"github.com/deskshell/telemetryd/pkg/model"
)

// Summary aggregates the samples of a time window.
type Summary struct {
	Samples          int     `json:"samples"`
	AvgCPU           float64 `json:"avgCpu"`
	PeakCPU          float64 `json:"peakCpu"`
	AvgMemoryPercent float64 `json:"avgMemoryPercent"`
	AvgGPUPercent    float64 `json:"avgGpuPercent,omitempty"`
}

// Summarize computes averages over the samples taken within since.
func (c *Collector) Summarize(since time.Duration) Summary {
	samples := c.Since(since)
	if len(samples) == 0 {
		return Summary{}
	}

	var cpu, mem, gpu float64
	var gpuCount int
	summary := Summary{Samples: len(samples)}
	for _, s := range samples {
		cpu += s.CPU
		mem += float64(s.Memory.Percent)
		if s.CPU > summary.PeakCPU {
			summary.PeakCPU = s.CPU
		}
		if s.GPU != nil {
			gpu += float64(s.GPU.Percent)
			gpuCount++
		}
	}

	n := float64(len(samples))
	summary.AvgCPU = model.Round(cpu/n, 1)
	summary.AvgMemoryPercent = model.Round(mem/n, 1)
	if gpuCount > 0 {
		summary.AvgGPUPercent = model.Round(gpu/float64(gpuCount), 1)
	}
	return summary
}
