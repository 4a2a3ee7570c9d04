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
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/web/model"
)

const sseHeartbeat = 15 * time.Second

var sseHeaders = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

func (c *basicController) setupSSEResponse() {
	for key, value := range sseHeaders {
		c.ctx.Writer.Header().Set(key, value)
	}
	c.ctx.Status(http.StatusOK)
	if flusher, ok := c.ctx.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

// writeFrame writes one SSE frame and flushes it.
func (c *basicController) writeFrame(frame []byte) error {
	defer func() {
		if flusher, ok := c.ctx.Writer.(http.Flusher); ok {
			flusher.Flush()
		}
	}()

	n, err := c.ctx.Writer.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	return err
}

func (c *basicController) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(model.StreamError{Error: err.Error()}) //nolint:errchkjson
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return c.writeFrame(frame)
}

// WatchMetrics streams recorded samples as server-sent events.
func (c *MetricController) WatchMetrics() {
	if c.deps.History == nil {
		c.RespondError(http.StatusServiceUnavailable, model.ErrorCodeUnavailable, "history is disabled")
		return
	}

	updates, cancel := c.deps.History.Subscribe()
	defer cancel()

	c.setupSSEResponse()
	if latest, ok := c.deps.History.Collector().Latest(); ok {
		if err := c.writeEvent(latest); err != nil {
			log.Warn("WatchMetrics write error: %v", err)
			return
		}
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.ctx.Request.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := c.writeEvent(u); err != nil {
				log.Warn("WatchMetrics write error: %v", err)
				return
			}
		case <-heartbeat.C:
			if err := c.writeFrame([]byte(": ping\n\n")); err != nil {
				return
			}
		}
	}
}
