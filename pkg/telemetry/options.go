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

import "time"

const (
	DefaultInitTimeout    = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultProcessLimit   = 10
)

// Option configures a Client.
type Option func(*Client)

// WithInitTimeout bounds the readiness handshake.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// WithRequestTimeout bounds how long a single request waits for its response.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}
