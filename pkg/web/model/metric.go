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

package model

import (
	"github.com/deskshell/telemetryd/pkg/history"
	usage "github.com/deskshell/telemetryd/pkg/model"
)

// ApiAccessTokenHeader carries the access token when one is configured.
const ApiAccessTokenHeader = "X-TELEMETRY-ACCESS-TOKEN"

const (
	DefaultProcessLimit  = 10
	DefaultHistoryWindow = "5m"
)

// ProcessesQuery binds GET /metrics/processes.
type ProcessesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// HistoryQuery binds GET /metrics/history.
type HistoryQuery struct {
	Since string `form:"since"`
}

// HistoryResponse lists the samples of a window with their aggregates.
type HistoryResponse struct {
	Since   string                `json:"since"`
	Samples []usage.ResourceUsage `json:"samples"`
	Summary history.Summary       `json:"summary"`
}

// StatusResponse describes the telemetry client.
type StatusResponse struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
	Samples int    `json:"samples"`
}

// StreamError is sent on a stream when a sample cannot be encoded.
type StreamError struct {
	Error string `json:"error"`
}
