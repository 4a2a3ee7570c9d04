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

package sampler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/provider"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

type usagePlan struct {
	at   time.Time
	disk bool
	gpu  bool
}

type usageResult struct {
	cpu     float64
	mem     provider.MemoryStat
	err     error
	disk    provider.DiskStat
	diskErr error
	gpu     *provider.GPUStat
	gpuErr  error
}

// Usage returns a snapshot of system usage. It never fails: overlapping
// calls get the cached fallback, failures get a degraded snapshot.
func (s *Sampler) Usage(ctx context.Context) model.ResourceUsage {
	reply := make(chan model.ResourceUsage, 1)
	if !s.submit(ctx, func() { s.startUsage(reply) }) {
		return model.EmptyUsage()
	}

	select {
	case u := <-reply:
		return u
	case <-ctx.Done():
		return model.EmptyUsage()
	case <-s.stopped:
		return model.EmptyUsage()
	}
}

func (s *Sampler) startUsage(reply chan<- model.ResourceUsage) {
	if s.fetchingUsage {
		reply <- s.fallbackUsage()
		return
	}
	s.fetchingUsage = true

	now := s.clock.Now()
	plan := usagePlan{
		at:   now,
		disk: s.due(s.lastDiskFetch, now),
		gpu:  s.due(s.lastGPUFetch, now),
	}
	ctx := s.runCtx
	safego.Go(func() {
		res := s.fetchUsage(ctx, plan)
		s.post(func() { reply <- s.finishUsage(plan, res) })
	})
}

// fetchUsage runs off the loop and must not touch sampler state.
func (s *Sampler) fetchUsage(ctx context.Context, plan usagePlan) (res usageResult) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("usage fetch panicked: %v", r)
		}
	}()

	if res.cpu, res.err = s.provider.CPU(ctx); res.err != nil {
		return res
	}
	if res.mem, res.err = s.provider.Memory(ctx); res.err != nil {
		return res
	}
	if plan.disk {
		res.disk, res.diskErr = s.provider.Disk(ctx)
	}
	if plan.gpu {
		res.gpu, res.gpuErr = s.provider.GPU(ctx)
	}
	return res
}

func (s *Sampler) finishUsage(plan usagePlan, res usageResult) model.ResourceUsage {
	s.fetchingUsage = false

	if res.err != nil {
		log.Error("sampler: usage fetch failed: %v", res.err)
		return s.degradedUsage()
	}

	if plan.disk {
		if res.diskErr != nil {
			log.Warn("sampler: disk fetch failed, keeping last value: %v", res.diskErr)
		} else {
			disk := model.NewDiskUsage(res.disk.Used, res.disk.Total)
			s.cachedDisk = &disk
			s.lastDiskFetch = plan.at
		}
	}
	if plan.gpu {
		if res.gpuErr != nil {
			log.Debug("sampler: gpu fetch failed: %v", res.gpuErr)
		} else {
			s.cachedGPU = toGPUUsage(res.gpu)
			s.lastGPUFetch = plan.at
		}
	}

	return model.ResourceUsage{
		CPU:       clampPercent(math.Round(res.cpu)),
		Memory:    model.NewMemoryUsage(res.mem.Used, res.mem.Total),
		Disk:      s.diskOrZero(),
		GPU:       s.cachedGPU.Clone(),
		Timestamp: s.stamp(),
	}
}

// fallbackUsage answers an overlapping call: cached disk/GPU, zero CPU/memory.
func (s *Sampler) fallbackUsage() model.ResourceUsage {
	return model.ResourceUsage{
		Disk:      s.diskOrZero(),
		GPU:       s.cachedGPU.Clone(),
		Timestamp: s.stamp(),
	}
}

// degradedUsage answers a failed fetch: everything zero except cached GPU.
func (s *Sampler) degradedUsage() model.ResourceUsage {
	return model.ResourceUsage{
		GPU:       s.cachedGPU.Clone(),
		Timestamp: s.stamp(),
	}
}

func (s *Sampler) diskOrZero() model.DiskUsage {
	if s.cachedDisk == nil {
		return model.DiskUsage{}
	}
	return *s.cachedDisk
}

func toGPUUsage(stat *provider.GPUStat) *model.GPUUsage {
	if stat == nil {
		return nil
	}
	gpu := &model.GPUUsage{Percent: int(clampPercent(math.Round(stat.Utilization)))}
	if stat.MemTotal > 0 {
		gpu.Memory = &model.GPUMemory{
			Used:  model.BytesToGB(stat.MemUsed),
			Total: model.BytesToGB(stat.MemTotal),
		}
	}
	return gpu
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
