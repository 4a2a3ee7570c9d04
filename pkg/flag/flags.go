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

package flag

import "time"

var (
	// ServerPort controls the HTTP listener port.
	ServerPort int

	// ServerLogLevel controls the server log verbosity.
	ServerLogLevel int

	// ServerAccessToken guards API entrypoints when set.
	ServerAccessToken string

	// ApiGracefulShutdownTimeout bounds HTTP shutdown.
	ApiGracefulShutdownTimeout time.Duration

	// Worker turns the binary into a telemetry worker speaking the
	// message protocol over stdin/stdout.
	Worker bool

	// WorkerMode selects where the worker runtime lives: "local" or "process".
	WorkerMode string

	// WorkerCommand overrides the executable started in process mode.
	WorkerCommand string

	// DiskPath is the mount point whose usage is reported.
	DiskPath string

	// ThrottleWindow is the minimum interval between disk/GPU fetches.
	ThrottleWindow time.Duration

	// InitTimeout bounds the worker readiness handshake.
	InitTimeout time.Duration

	// RequestTimeout bounds a single worker request.
	RequestTimeout time.Duration

	// PollInterval is the history recorder cadence.
	PollInterval time.Duration

	// HistorySize caps the number of retained usage samples.
	HistorySize int

	// ExcludeProcesses holds comma separated glob patterns of process names
	// left out of rankings.
	ExcludeProcesses string

	// MySQLDSN enables mirroring usage samples into MySQL when set.
	MySQLDSN string
)
