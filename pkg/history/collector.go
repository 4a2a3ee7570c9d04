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

// Package history keeps recent usage samples polled from the telemetry
// client and forwards them to subscribers and sinks.
package history

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/deskshell/telemetryd/pkg/model"
)

// Collector stores a bounded history of usage samples.
type Collector struct {
	samples []model.ResourceUsage
	lock    sync.RWMutex
	clock   clock.PassiveClock

	// maxSamples is the maximum number of samples to retain
	maxSamples int
}

// NewCollector creates a Collector retaining at most maxSamples samples.
func NewCollector(maxSamples int) *Collector {
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Collector{
		samples:    make([]model.ResourceUsage, 0, maxSamples),
		clock:      clock.RealClock{},
		maxSamples: maxSamples,
	}
}

// Add records a sample, dropping the oldest once full.
func (c *Collector) Add(u model.ResourceUsage) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.samples = append(c.samples, u)
	if len(c.samples) > c.maxSamples {
		c.samples = c.samples[len(c.samples)-c.maxSamples:]
	}
}

// Since returns the samples taken within the given window, oldest first.
func (c *Collector) Since(since time.Duration) []model.ResourceUsage {
	cutoff := c.clock.Now().Add(-since).UnixMilli()

	c.lock.RLock()
	defer c.lock.RUnlock()

	result := make([]model.ResourceUsage, 0)
	for _, s := range c.samples {
		if s.Timestamp > cutoff {
			result = append(result, s)
		}
	}
	return result
}

// Latest returns the most recent sample.
func (c *Collector) Latest() (model.ResourceUsage, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if len(c.samples) == 0 {
		return model.ResourceUsage{}, false
	}
	return c.samples[len(c.samples)-1], true
}

func (c *Collector) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.samples)
}
