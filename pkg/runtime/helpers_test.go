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

package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/provider"
)

type stubSampler struct {
	cpu        float64
	panicUsage bool
	calls      atomic.Int32
}

func (s *stubSampler) Usage(context.Context) model.ResourceUsage {
	s.calls.Add(1)
	if s.panicUsage {
		panic("sampler exploded")
	}
	return model.ResourceUsage{CPU: s.cpu, Timestamp: 1}
}

func (s *stubSampler) Processes(_ context.Context, limit int) []model.ProcessInfo {
	s.calls.Add(1)
	out := make([]model.ProcessInfo, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, model.ProcessInfo{PID: i + 1, Name: "proc"})
	}
	return out
}

type stubProvider struct{}

func (stubProvider) CPU(context.Context) (float64, error) { return 12, nil }

func (stubProvider) Memory(context.Context) (provider.MemoryStat, error) {
	return provider.MemoryStat{Used: 1 << 30, Total: 4 << 30}, nil
}

func (stubProvider) Disk(context.Context) (provider.DiskStat, error) {
	return provider.DiskStat{Used: 10 << 30, Total: 20 << 30}, nil
}

func (stubProvider) GPU(context.Context) (*provider.GPUStat, error) { return nil, nil }

func (stubProvider) Processes(context.Context) ([]provider.ProcessSample, error) {
	return []provider.ProcessSample{{PID: 9, Name: "go", CPU: 3, MemRSS: 1 << 20, MemPercent: 1}}, nil
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for runtime event")
		return Event{}
	}
}

func requireClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-events:
		require.False(t, ok, "expected event channel to be closed")
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed")
	}
}
