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

package telemetry

import "emperror.dev/errors"

const (
	// ErrRequestTimeout rejects a request whose response did not arrive in time.
	ErrRequestTimeout = errors.Sentinel("telemetry request timed out")
	// ErrRuntimeFailure rejects everything once the worker crashed or exited.
	ErrRuntimeFailure = errors.Sentinel("telemetry runtime failed")
	// ErrInitTimeout means the worker never announced readiness.
	ErrInitTimeout = errors.Sentinel("telemetry runtime did not become ready")
	// ErrDestroyed rejects requests outstanding when the client is destroyed.
	ErrDestroyed = errors.Sentinel("telemetry client destroyed")
	// ErrNotReady is returned for requests issued outside the ready state.
	ErrNotReady = errors.Sentinel("telemetry client not ready")
)
