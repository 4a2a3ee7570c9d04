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

// Package telemetry is the caller-facing facade over a telemetry worker.
//
// A Client owns one runtime for its whole life. It correlates requests and
// responses by id, bounds every wait with a timeout and degrades to zero
// values instead of returning errors to its callers.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/protocol"
	"github.com/deskshell/telemetryd/pkg/runtime"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type result struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	action protocol.Action
	result chan result
	timer  *time.Timer
}

// deliver is called exactly once, by whoever removed the entry from the map.
func (p *pendingRequest) deliver(r result) {
	p.result <- r
}

// Client talks to a telemetry worker.
type Client struct {
	// Runtime hosting the worker
	rt runtime.Runtime

	initTimeout    time.Duration
	requestTimeout time.Duration

	// Session prefix of request ids
	session string

	// Request sequence
	seq atomic.Uint64

	// Mutex for protecting the fields below
	mu        sync.Mutex
	state     State
	pending   map[string]*pendingRequest
	readyCh   chan struct{}
	readyErr  error
	termErr   error
	initTimer *time.Timer
	destroyed bool
}

// New creates a Client and starts rt in the background. It never blocks;
// use Ready to wait for the handshake.
func New(rt runtime.Runtime, opts ...Option) *Client {
	c := &Client{
		rt:             rt,
		initTimeout:    DefaultInitTimeout,
		requestTimeout: DefaultRequestTimeout,
		session:        uuid.New().String(),
		state:          StateUninitialized,
		pending:        make(map[string]*pendingRequest),
		readyCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.start()
	return c
}

func (c *Client) start() {
	c.mu.Lock()
	c.state = StateInitializing
	c.initTimer = time.AfterFunc(c.initTimeout, c.abortInit)
	c.mu.Unlock()

	safego.Go(func() {
		if err := c.rt.Start(); err != nil {
			log.Error("telemetry: failed to start runtime: %v", err)
			c.fail(fmt.Errorf("%w: %w", ErrRuntimeFailure, err))
			return
		}

		c.mu.Lock()
		destroyed := c.destroyed
		c.mu.Unlock()
		if destroyed {
			c.terminateRuntime()
		}

		c.dispatch()
	})
}

// dispatch consumes runtime events until the runtime closes its stream.
func (c *Client) dispatch() {
	for ev := range c.rt.Events() {
		switch ev.Type {
		case runtime.EventMessage:
			c.route(ev.Response)
		case runtime.EventError:
			log.Error("telemetry: runtime error: %v", ev.Err)
			if c.fail(fmt.Errorf("%w: %w", ErrRuntimeFailure, ev.Err)) {
				c.terminateRuntime()
			}
		case runtime.EventExit:
			// exit 0 is only clean after Destroy, which already left the
			// client terminated and makes fail a no-op
			if c.fail(fmt.Errorf("%w: worker exited with code %d", ErrRuntimeFailure, ev.ExitCode)) {
				log.Error("telemetry: worker exited unexpectedly with code %d", ev.ExitCode)
			}
		}
	}
	c.fail(fmt.Errorf("%w: event stream closed", ErrRuntimeFailure))
}

func (c *Client) route(resp *protocol.Response) {
	if resp.IsReady() {
		c.mu.Lock()
		if c.state == StateInitializing {
			c.state = StateReady
			c.initTimer.Stop()
			c.closeReadyLocked(nil)
			log.Info("telemetry: runtime ready")
		}
		c.mu.Unlock()
		return
	}

	p := c.take(resp.ID)
	if p == nil {
		log.Debug("telemetry: dropping response for unknown request %s", resp.ID)
		return
	}
	if !resp.Success {
		p.deliver(result{err: errors.WithDetails(errors.New(resp.Error), "action", p.action, "id", resp.ID)})
		return
	}
	p.deliver(result{data: resp.Data})
}

// take removes a pending entry; only the caller that gets it may deliver.
func (c *Client) take(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	p.timer.Stop()
	return p
}

func (c *Client) closeReadyLocked(err error) {
	select {
	case <-c.readyCh:
	default:
		c.readyErr = err
		close(c.readyCh)
	}
}

// shutdownLocked moves the client to Terminated and hands back the pending
// requests for the caller to reject outside the lock.
func (c *Client) shutdownLocked(cause error) []*pendingRequest {
	c.state = StateTerminated
	if c.termErr == nil {
		c.termErr = cause
	}
	if c.initTimer != nil {
		c.initTimer.Stop()
	}
	c.closeReadyLocked(cause)

	taken := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		delete(c.pending, id)
		p.timer.Stop()
		taken = append(taken, p)
	}
	return taken
}

// fail terminates the client with cause. It reports whether this call did
// the transition.
func (c *Client) fail(cause error) bool {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return false
	}
	taken := c.shutdownLocked(cause)
	c.mu.Unlock()

	for _, p := range taken {
		p.deliver(result{err: cause})
	}
	return true
}

func (c *Client) abortInit() {
	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		return
	}
	cause := fmt.Errorf("%w: %w", ErrRuntimeFailure, ErrInitTimeout)
	taken := c.shutdownLocked(cause)
	c.mu.Unlock()

	log.Error("telemetry: runtime not ready after %s", c.initTimeout)
	for _, p := range taken {
		p.deliver(result{err: cause})
	}
	c.terminateRuntime()
}

func (c *Client) terminateRuntime() {
	defer func() {
		if r := recover(); r != nil {
			log.Error("telemetry: runtime terminate panicked: %v", r)
		}
	}()

	if err := c.rt.Terminate(); err != nil {
		log.Warn("telemetry: failed to terminate runtime: %v", err)
	}
}

// Ready waits for the readiness handshake. It returns an error wrapping
// ErrInitTimeout or ErrRuntimeFailure when the runtime never became ready.
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.readyCh:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) nextRequestID() string {
	return fmt.Sprintf("%s-%d-%d", c.session, c.seq.Add(1), time.Now().UnixMilli())
}

// sendRequest sends one request and waits for its response, its timeout,
// a runtime failure or ctx, whichever comes first. Timing out does not
// cancel the work inside the worker.
func (c *Client) sendRequest(ctx context.Context, action protocol.Action, params *protocol.Params) (json.RawMessage, error) {
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}

	id := c.nextRequestID()
	p := &pendingRequest{action: action, result: make(chan result, 1)}

	c.mu.Lock()
	if c.state != StateReady {
		err := c.termErr
		c.mu.Unlock()
		if err == nil {
			err = ErrNotReady
		}
		return nil, err
	}
	c.pending[id] = p
	p.timer = time.AfterFunc(c.requestTimeout, func() {
		if c.take(id) != nil {
			p.deliver(result{err: errors.WithDetails(ErrRequestTimeout, "action", action, "id", id)})
		}
	})
	c.mu.Unlock()

	if err := c.rt.Send(&protocol.Request{ID: id, Action: action, Params: params}); err != nil {
		if c.take(id) != nil {
			return nil, errors.WithDetails(errors.WrapIf(err, "failed to send request"), "action", action, "id", id)
		}
	}

	select {
	case r := <-p.result:
		return r.data, r.err
	case <-ctx.Done():
		if c.take(id) != nil {
			return nil, ctx.Err()
		}
		r := <-p.result
		return r.data, r.err
	}
}

// GetUsage returns the current resource usage. It never fails: any error
// is logged and an all-zero snapshot is returned.
func (c *Client) GetUsage(ctx context.Context) model.ResourceUsage {
	data, err := c.sendRequest(ctx, protocol.ActionGetUsage, nil)
	if err != nil {
		log.Warn("telemetry: getUsage failed: %v", err)
		return model.EmptyUsage()
	}

	var usage model.ResourceUsage
	if err := protocol.Unmarshal(data, &usage); err != nil {
		log.Warn("telemetry: failed to decode usage: %v", err)
		return model.EmptyUsage()
	}
	return usage
}

// GetProcesses returns the top limit processes; limit <= 0 means
// DefaultProcessLimit. It never fails: errors yield an empty list.
func (c *Client) GetProcesses(ctx context.Context, limit int) []model.ProcessInfo {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}

	data, err := c.sendRequest(ctx, protocol.ActionGetProcesses, &protocol.Params{Limit: limit})
	if err != nil {
		log.Warn("telemetry: getProcesses failed: %v", err)
		return []model.ProcessInfo{}
	}

	var list []model.ProcessInfo
	if err := protocol.Unmarshal(data, &list); err != nil {
		log.Warn("telemetry: failed to decode processes: %v", err)
		return []model.ProcessInfo{}
	}
	if list == nil {
		list = []model.ProcessInfo{}
	}
	return list
}

// Destroy rejects outstanding requests with ErrDestroyed and terminates the
// runtime. The client cannot be reused. Destroy is idempotent.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	taken := c.shutdownLocked(ErrDestroyed)
	c.mu.Unlock()

	defer func() {
		for _, p := range taken {
			p.deliver(result{err: ErrDestroyed})
		}
	}()

	log.Info("telemetry: destroying client")
	c.terminateRuntime()
}
