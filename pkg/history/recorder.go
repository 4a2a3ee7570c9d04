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
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
)

// DefaultPollInterval is how often the recorder asks for usage.
const DefaultPollInterval = 3 * time.Second

const subscriberBuffer = 8

// UsageSource is satisfied by telemetry.Client.
type UsageSource interface {
	GetUsage(ctx context.Context) model.ResourceUsage
}

// Sink persists samples somewhere outside the process.
type Sink interface {
	Write(ctx context.Context, u model.ResourceUsage) error
}

// Recorder polls a UsageSource on a fixed interval.
type Recorder struct {
	source    UsageSource
	collector *Collector
	interval  time.Duration
	sinks     []Sink

	mu          sync.Mutex
	closed      bool
	nextID      int
	subscribers map[int]chan model.ResourceUsage
}

func NewRecorder(source UsageSource, collector *Collector, interval time.Duration, sinks ...Sink) *Recorder {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Recorder{
		source:      source,
		collector:   collector,
		interval:    interval,
		sinks:       sinks,
		subscribers: make(map[int]chan model.ResourceUsage),
	}
}

// Collector returns the history the recorder fills.
func (r *Recorder) Collector() *Collector {
	return r.collector
}

// Run polls until ctx is done. Polls never overlap.
func (r *Recorder) Run(ctx context.Context) {
	log.Info("history: polling usage every %s", r.interval)
	wait.UntilWithContext(ctx, r.poll, r.interval)
	r.closeSubscribers()
}

func (r *Recorder) poll(ctx context.Context) {
	u := r.source.GetUsage(ctx)
	if ctx.Err() != nil {
		return
	}

	r.collector.Add(u)
	r.publish(u)

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, u); err != nil {
			log.Warn("history: sink write failed: %v", err)
		}
	}
}

// Subscribe returns a channel receiving every new sample and a function
// that cancels the subscription. Slow subscribers miss samples.
func (r *Recorder) Subscribe() (<-chan model.ResourceUsage, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan model.ResourceUsage, subscriberBuffer)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if sub, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(sub)
			}
		})
	}
}

func (r *Recorder) publish(u model.ResourceUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ch := range r.subscribers {
		select {
		case ch <- u:
		default:
			log.Debug("history: subscriber %d is behind, dropping sample", id)
		}
	}
}

func (r *Recorder) closeSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}
