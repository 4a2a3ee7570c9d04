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

// Package sampler turns raw provider counters into usage snapshots and
// process rankings, applying throttling, caching and overlap guards.
//
// A Sampler is an actor: Run executes a loop goroutine that owns every cache
// field and guard flag. Provider calls run on helper goroutines and their
// results are applied back on the loop, so no state is shared and no lock
// is taken.
package sampler

import (
	"context"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"k8s.io/utils/clock"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/provider"
)

const (
	// DefaultThrottleWindow is the minimum time between two disk or GPU fetches.
	DefaultThrottleWindow = 10 * time.Second
	// DefaultProcessLimit is used when a caller asks for a non-positive limit.
	DefaultProcessLimit = 10
)

// Option configures a Sampler.
type Option func(*Sampler)

// WithThrottleWindow overrides DefaultThrottleWindow.
func WithThrottleWindow(d time.Duration) Option {
	return func(s *Sampler) { s.throttle = d }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Sampler) { s.clock = c }
}

// WithExcludePatterns hides processes whose name matches any glob pattern.
func WithExcludePatterns(patterns []string) Option {
	return func(s *Sampler) {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				log.Warn("sampler: ignoring invalid exclude pattern %q", p)
				continue
			}
			s.exclude = append(s.exclude, p)
		}
	}
}

// Sampler produces ResourceUsage snapshots and process rankings.
type Sampler struct {
	provider provider.Provider
	clock    clock.PassiveClock
	throttle time.Duration
	exclude  []string

	inbox   chan func()
	stopped chan struct{}

	// Owned by the loop goroutine.
	runCtx            context.Context
	cachedDisk        *model.DiskUsage
	cachedGPU         *model.GPUUsage
	lastDiskFetch     time.Time
	lastGPUFetch      time.Time
	fetchingUsage     bool
	fetchingProcesses bool
	lastTimestamp     int64
}

// New creates a Sampler. Run must be started before Usage or Processes
// can answer.
func New(p provider.Provider, opts ...Option) *Sampler {
	s := &Sampler{
		provider: p,
		clock:    clock.RealClock{},
		throttle: DefaultThrottleWindow,
		inbox:    make(chan func()),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the sampler loop until ctx is done. It must be called once.
func (s *Sampler) Run(ctx context.Context) {
	s.runCtx = ctx
	defer close(s.stopped)

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once the loop has exited.
func (s *Sampler) Done() <-chan struct{} {
	return s.stopped
}

// submit hands fn to the loop on behalf of a caller.
func (s *Sampler) submit(ctx context.Context, fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopped:
		return false
	}
}

// post hands fn to the loop from a helper goroutine; dropped after shutdown.
func (s *Sampler) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.stopped:
	}
}

func (s *Sampler) due(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= s.throttle
}

// stamp returns a timestamp that never goes backwards.
func (s *Sampler) stamp() int64 {
	ts := s.clock.Now().UnixMilli()
	if ts < s.lastTimestamp {
		ts = s.lastTimestamp
	}
	s.lastTimestamp = ts
	return ts
}
