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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/protocol"
	"github.com/deskshell/telemetryd/pkg/provider"
	"github.com/deskshell/telemetryd/pkg/sampler"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

// Local runs the worker on goroutines inside the current process. Requests
// and responses still cross io.Pipes as encoded bytes, so the caller never
// shares memory with the sampler.
type Local struct {
	provider provider.Provider
	options  []sampler.Option
	// wrap lets tests interpose on the sampler.
	wrap func(*sampler.Sampler) Sampler
	// gracePeriod is how long Terminate lets in-flight requests drain
	// before their context is cancelled.
	gracePeriod time.Duration

	mu          sync.Mutex
	started     bool
	terminating bool
	reqW        *io.PipeWriter
	enc         *protocol.Encoder
	cancel      context.CancelFunc
	killTimer   *time.Timer
	events      chan Event
}

var _ Runtime = (*Local)(nil)

// NewLocal creates an in-process runtime whose sampler reads from p.
func NewLocal(p provider.Provider, opts ...sampler.Option) *Local {
	return &Local{
		provider:    p,
		options:     opts,
		gracePeriod: defaultGracePeriod,
		events:      make(chan Event, eventBuffer),
	}
}

func (l *Local) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	l.reqW = reqW
	l.enc = protocol.NewEncoder(reqW)

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	s := sampler.New(l.provider, l.options...)
	safego.Go(func() { s.Run(ctx) })

	var worker Sampler = s
	if l.wrap != nil {
		worker = l.wrap(s)
	}

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			l.mu.Lock()
			if l.killTimer != nil {
				l.killTimer.Stop()
			}
			l.mu.Unlock()

			cancel()
			_ = reqR.Close()
			if err != nil {
				_ = respW.CloseWithError(err)
				return
			}
			_ = respW.Close()
		})
	}

	safego.GoWithRecover(func() {
		finish(Serve(ctx, reqR, respW, NewHandler(worker)))
	}, func(r any) {
		finish(fmt.Errorf("%w: %v", ErrWorkerPanic, r))
	})
	safego.Go(func() { l.pump(respR) })

	log.Info("runtime: local worker started")
	return nil
}

// pump forwards worker output as events until the response pipe closes.
func (l *Local) pump(respR *io.PipeReader) {
	defer close(l.events)

	dec := protocol.NewDecoder(respR)
	for {
		resp, err := dec.DecodeResponse()
		if err == nil {
			l.events <- Event{Type: EventMessage, Response: resp}
			continue
		}

		var malformed *protocol.MalformedError
		if errors.As(err, &malformed) {
			log.Warn("runtime: dropping malformed worker output: %v", malformed)
			continue
		}
		if errors.Is(err, io.EOF) {
			l.events <- Event{Type: EventExit, ExitCode: 0}
			return
		}
		l.events <- Event{Type: EventError, Err: err}
		l.events <- Event{Type: EventExit, ExitCode: 1}
		return
	}
}

func (l *Local) Send(req *protocol.Request) error {
	l.mu.Lock()
	enc, terminating := l.enc, l.terminating
	l.mu.Unlock()

	if enc == nil {
		return ErrNotStarted
	}
	if terminating {
		return ErrTerminated
	}
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("failed to send %s: %w", req.ID, err)
	}
	return nil
}

func (l *Local) Events() <-chan Event {
	return l.events
}

// Terminate closes the request stream; the worker drains in-flight requests
// and exits with code 0. Requests still running after the grace period are
// cancelled.
func (l *Local) Terminate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started || l.terminating {
		return nil
	}
	l.terminating = true
	l.killTimer = time.AfterFunc(l.gracePeriod, func() {
		log.Warn("runtime: local worker still busy after %s, cancelling", l.gracePeriod)
		l.cancel()
	})
	return l.reqW.Close()
}
