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

// Package runtime hosts a sampler behind the worker message protocol.
//
// Serve is the worker side. Local and Process are the two hosts a client can
// talk to; both exchange only encoded messages with the worker.
package runtime

import (
	"errors"
	"fmt"

	"github.com/deskshell/telemetryd/pkg/protocol"
)

var (
	ErrNotStarted     = errors.New("runtime not started")
	ErrAlreadyStarted = errors.New("runtime already started")
	ErrTerminated     = errors.New("runtime terminated")
	ErrWorkerPanic    = errors.New("worker panicked")
)

// EventType classifies runtime events.
type EventType int

const (
	// EventMessage carries a decoded worker response.
	EventMessage EventType = iota
	// EventError reports a runtime-level fault.
	EventError
	// EventExit reports the worker exit code. It is always the last event.
	EventExit
)

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventExit:
		return "exit"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted by a Runtime.
type Event struct {
	Type     EventType
	Response *protocol.Response
	Err      error
	ExitCode int
}

// Runtime is an isolated execution context running one worker.
//
// Events is closed after the EventExit event. Send and Terminate are safe for
// concurrent use.
type Runtime interface {
	Start() error
	Send(req *protocol.Request) error
	Events() <-chan Event
	Terminate() error
}

const eventBuffer = 64
