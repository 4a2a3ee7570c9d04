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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/protocol"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

// WorkerFlag starts the binary as a worker serving stdin/stdout.
const WorkerFlag = "--worker"

const defaultGracePeriod = 3 * time.Second

// ProcessConfig describes the child worker process.
type ProcessConfig struct {
	// Command is the argv of the worker. Empty means the current executable
	// with WorkerFlag.
	Command []string
	// Env is appended to the parent environment.
	Env []string
	// GracePeriod is how long Terminate waits before killing the child.
	GracePeriod time.Duration
}

// Process runs the worker as a child process speaking the protocol over
// its stdin and stdout. The child's stderr is passed through.
type Process struct {
	config ProcessConfig

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	enc         *protocol.Encoder
	terminating bool
	killTimer   *time.Timer
	events      chan Event
}

var _ Runtime = (*Process)(nil)

func NewProcess(config ProcessConfig) *Process {
	if config.GracePeriod <= 0 {
		config.GracePeriod = defaultGracePeriod
	}
	return &Process{
		config: config,
		events: make(chan Event, eventBuffer),
	}
}

func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return ErrAlreadyStarted
	}

	argv := p.config.Command
	if len(argv) == 0 {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate worker executable: %w", err)
		}
		argv = []string{self, WorkerFlag}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), p.config.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %s: %w", argv[0], err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.enc = protocol.NewEncoder(stdin)

	log.Info("runtime: worker process started, pid %d", cmd.Process.Pid)
	safego.Go(func() { p.pump(stdout) })
	return nil
}

// pump forwards worker output as events, then reaps the child.
func (p *Process) pump(stdout io.Reader) {
	defer close(p.events)

	dec := protocol.NewDecoder(stdout)
	for {
		resp, err := dec.DecodeResponse()
		if err == nil {
			p.events <- Event{Type: EventMessage, Response: resp}
			continue
		}
		var malformed *protocol.MalformedError
		if errors.As(err, &malformed) {
			log.Warn("runtime: dropping malformed worker output: %v", malformed)
			continue
		}
		if !errors.Is(err, io.EOF) {
			p.events <- Event{Type: EventError, Err: fmt.Errorf("failed to read worker output: %w", err)}
		}
		break
	}

	err := p.cmd.Wait()

	p.mu.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.mu.Unlock()

	if err == nil {
		log.Info("runtime: worker process exited")
		p.events <- Event{Type: EventExit, ExitCode: 0}
		return
	}

	exitCode := 1
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		exitCode = exitError.ExitCode()
	} else {
		p.events <- Event{Type: EventError, Err: err}
	}
	log.Warn("runtime: worker process exited: %v", err)
	p.events <- Event{Type: EventExit, ExitCode: exitCode}
}

func (p *Process) Send(req *protocol.Request) error {
	p.mu.Lock()
	enc, terminating := p.enc, p.terminating
	p.mu.Unlock()

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

func (p *Process) Events() <-chan Event {
	return p.events
}

// Terminate closes the worker's stdin and kills it if it has not exited
// after the grace period.
func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.terminating {
		return nil
	}
	p.terminating = true

	proc := p.cmd.Process
	p.killTimer = time.AfterFunc(p.config.GracePeriod, func() {
		log.Warn("runtime: worker %d did not exit in %s, killing", proc.Pid, p.config.GracePeriod)
		_ = proc.Kill()
	})
	return p.stdin.Close()
}
