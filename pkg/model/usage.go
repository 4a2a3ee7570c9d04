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

// Package model holds the value types exchanged across the worker boundary.
package model

import (
	"math"
	"time"
)

const bytesPerGB = 1024 * 1024 * 1024

// MemoryUsage reports RAM in GB.
type MemoryUsage struct {
	Used    float64 `json:"used"`
	Total   float64 `json:"total"`
	Percent int     `json:"percent"`
}

// DiskUsage reports a filesystem in GB.
type DiskUsage struct {
	Used    float64 `json:"used"`
	Total   float64 `json:"total"`
	Percent int     `json:"percent"`
}

// GPUMemory reports dedicated GPU memory in GB.
type GPUMemory struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// GPUUsage is only present on hosts exposing GPU telemetry.
type GPUUsage struct {
	Percent int        `json:"percent"`
	Memory  *GPUMemory `json:"memory,omitempty"`
}

// ResourceUsage is a single system sample.
type ResourceUsage struct {
	CPU       float64     `json:"cpu"`
	Memory    MemoryUsage `json:"memory"`
	Disk      DiskUsage   `json:"disk"`
	GPU       *GPUUsage   `json:"gpu,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ProcessInfo is one entry of the process ranking.
type ProcessInfo struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	CPU        float64 `json:"cpu"`
	Memory     int     `json:"memory"`
	MemPercent float64 `json:"memPercent"`
}

// EmptyUsage returns the all-zero snapshot stamped with the current time.
func EmptyUsage() ResourceUsage {
	return ResourceUsage{Timestamp: time.Now().UnixMilli()}
}

// NewMemoryUsage converts byte counters into a MemoryUsage.
func NewMemoryUsage(used, total uint64) MemoryUsage {
	return MemoryUsage{
		Used:    BytesToGB(used),
		Total:   BytesToGB(total),
		Percent: Percent(used, total),
	}
}

// NewDiskUsage converts byte counters into a DiskUsage.
func NewDiskUsage(used, total uint64) DiskUsage {
	return DiskUsage{
		Used:    BytesToGB(used),
		Total:   BytesToGB(total),
		Percent: Percent(used, total),
	}
}

// Clone returns a deep copy so cached values never alias a published sample.
func (g *GPUUsage) Clone() *GPUUsage {
	if g == nil {
		return nil
	}
	cp := *g
	if g.Memory != nil {
		mem := *g.Memory
		cp.Memory = &mem
	}
	return &cp
}

// BytesToGB converts bytes to GB rounded to two decimals.
func BytesToGB(b uint64) float64 {
	return Round(float64(b)/bytesPerGB, 2)
}

// Percent returns used/total as an integer percentage clamped to 0..100.
func Percent(used, total uint64) int {
	if total == 0 {
		return 0
	}
	p := int(math.Round(float64(used) * 100 / float64(total)))
	if p > 100 {
		return 100
	}
	return p
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
