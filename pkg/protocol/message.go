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

// Package protocol defines the messages exchanged with a telemetry worker
// and their newline-delimited JSON encoding.
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ReadyID is the reserved id of the readiness sentinel. Generated request
// ids always contain a dash and a sequence number, so they never collide.
const ReadyID = "ready"

// Action names a worker operation.
type Action string

const (
	ActionGetUsage     Action = "getUsage"
	ActionGetProcesses Action = "getProcesses"
)

// Params carries optional request arguments.
type Params struct {
	Limit int `json:"limit,omitempty"`
}

// Request is sent to the worker.
type Request struct {
	ID     string  `json:"id"`
	Action Action  `json:"action"`
	Params *Params `json:"params,omitempty"`
}

// Response is emitted by the worker and always echoes the request id.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Ready builds the readiness sentinel.
func Ready() *Response {
	return &Response{ID: ReadyID, Success: true}
}

// IsReady reports whether r is the readiness sentinel.
func (r *Response) IsReady() bool {
	return r != nil && r.ID == ReadyID
}

// Success builds a successful response carrying data.
func Success(id string, data any) *Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return Failure(id, fmt.Sprintf("failed to encode %T: %v", data, err))
	}
	return &Response{ID: id, Success: true, Data: raw}
}

// Failure builds a business-error response.
func Failure(id, message string) *Response {
	return &Response{ID: id, Success: false, Error: message}
}

// Limit returns the requested limit, or 0 when absent.
func (r *Request) Limit() int {
	if r.Params == nil {
		return 0
	}
	return r.Params.Limit
}
