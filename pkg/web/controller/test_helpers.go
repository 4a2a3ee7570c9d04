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

package controller

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/deskshell/telemetryd/pkg/history"
	usage "github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/telemetry"
)

// nolint:unused
func newTestContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	ctx.Request = req
	return ctx, w
}

// fakeTelemetry answers with canned values and records the limits it saw.
// nolint:unused
type fakeTelemetry struct {
	usage     usage.ResourceUsage
	processes []usage.ProcessInfo
	state     telemetry.State
	pending   int

	mu     sync.Mutex
	limits []int
}

func (f *fakeTelemetry) GetUsage(context.Context) usage.ResourceUsage { return f.usage }

func (f *fakeTelemetry) GetProcesses(_ context.Context, limit int) []usage.ProcessInfo {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if len(f.processes) > limit {
		return f.processes[:limit]
	}
	return f.processes
}

func (f *fakeTelemetry) State() telemetry.State { return f.state }

func (f *fakeTelemetry) Pending() int { return f.pending }

func (f *fakeTelemetry) seenLimits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.limits...)
}

// fakeHistory hands out one subscription channel that tests feed directly.
// nolint:unused
type fakeHistory struct {
	collector *history.Collector
	updates   chan usage.ResourceUsage

	mu        sync.Mutex
	cancelled bool
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		collector: history.NewCollector(16),
		updates:   make(chan usage.ResourceUsage, 4),
	}
}

func (f *fakeHistory) Collector() *history.Collector { return f.collector }

func (f *fakeHistory) Subscribe() (<-chan usage.ResourceUsage, func()) {
	return f.updates, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}
}

func (f *fakeHistory) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
