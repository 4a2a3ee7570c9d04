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
	"context"

	"github.com/deskshell/telemetryd/pkg/history"
	usage "github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/telemetry"
)

// Telemetry is the part of telemetry.Client the API uses.
type Telemetry interface {
	GetUsage(ctx context.Context) usage.ResourceUsage
	GetProcesses(ctx context.Context, limit int) []usage.ProcessInfo
	State() telemetry.State
	Pending() int
}

// History is the part of history.Recorder the API uses.
type History interface {
	Collector() *history.Collector
	Subscribe() (<-chan usage.ResourceUsage, func())
}

// Deps are the long-lived services handed to every controller.
type Deps struct {
	Telemetry Telemetry
	History   History
}

var (
	_ Telemetry = (*telemetry.Client)(nil)
	_ History   = (*history.Recorder)(nil)
)
