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

// Package provider reads raw OS counters.
package provider

import "context"

// MemoryStat is physical memory in bytes.
type MemoryStat struct {
	Used  uint64
	Total uint64
}

// DiskStat is filesystem usage in bytes.
type DiskStat struct {
	Used  uint64
	Total uint64
}

// GPUStat is the first GPU controller. Memory values are bytes; a zero
// MemTotal means the controller does not report memory.
type GPUStat struct {
	Name        string
	Utilization float64
	MemUsed     uint64
	MemTotal    uint64
}

// ProcessSample is a raw process reading.
type ProcessSample struct {
	PID        int
	Name       string
	CPU        float64 // percent
	MemRSS     uint64  // bytes
	MemPercent float64
}

// Provider supplies raw counters. Calls may be slow and may fail; GPU
// returns (nil, nil) when the host exposes no GPU telemetry.
type Provider interface {
	CPU(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryStat, error)
	Disk(ctx context.Context) (DiskStat, error)
	GPU(ctx context.Context) (*GPUStat, error)
	Processes(ctx context.Context) ([]ProcessSample, error)
}
