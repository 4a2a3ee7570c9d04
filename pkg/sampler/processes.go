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
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/provider"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

// Processes returns the top limit processes by 2*cpu + memPercent. An
// overlapping call or a provider failure yields an empty list.
func (s *Sampler) Processes(ctx context.Context, limit int) []model.ProcessInfo {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}

	reply := make(chan []model.ProcessInfo, 1)
	if !s.submit(ctx, func() { s.startProcesses(limit, reply) }) {
		return []model.ProcessInfo{}
	}

	select {
	case list := <-reply:
		return list
	case <-ctx.Done():
		return []model.ProcessInfo{}
	case <-s.stopped:
		return []model.ProcessInfo{}
	}
}

func (s *Sampler) startProcesses(limit int, reply chan<- []model.ProcessInfo) {
	if s.fetchingProcesses {
		reply <- []model.ProcessInfo{}
		return
	}
	s.fetchingProcesses = true

	ctx := s.runCtx
	exclude := s.exclude
	safego.Go(func() {
		list, err := s.fetchProcesses(ctx, limit, exclude)
		s.post(func() {
			s.fetchingProcesses = false
			if err != nil {
				log.Error("sampler: process fetch failed: %v", err)
				list = []model.ProcessInfo{}
			}
			reply <- list
		})
	})
}

func (s *Sampler) fetchProcesses(ctx context.Context, limit int, exclude []string) (list []model.ProcessInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process fetch panicked: %v", r)
		}
	}()

	samples, err := s.provider.Processes(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(samples, limit, exclude), nil
}

// Rank drops idle and excluded processes, orders the rest by
// 2*cpu + memPercent descending (stable) and keeps the first limit.
func Rank(samples []provider.ProcessSample, limit int, exclude []string) []model.ProcessInfo {
	type scored struct {
		sample provider.ProcessSample
		score  float64
	}

	ranked := make([]scored, 0, len(samples))
	for _, p := range samples {
		if p.CPU == 0 && p.MemPercent == 0 {
			continue
		}
		if excluded(p.Name, exclude) {
			continue
		}
		ranked = append(ranked, scored{sample: p, score: 2*p.CPU + p.MemPercent})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]model.ProcessInfo, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, model.ProcessInfo{
			PID:        r.sample.PID,
			Name:       r.sample.Name,
			CPU:        model.Round(r.sample.CPU, 1),
			Memory:     int(math.Round(float64(r.sample.MemRSS) / 1024 / 1024)),
			MemPercent: model.Round(r.sample.MemPercent, 1),
		})
	}
	return out
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
