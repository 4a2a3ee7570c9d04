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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/util/safego"
	"github.com/deskshell/telemetryd/pkg/web/model"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMetrics streams recorded samples over a WebSocket, one JSON text
// message per sample.
func (c *MetricController) StreamMetrics() {
	if c.deps.History == nil {
		c.RespondError(http.StatusServiceUnavailable, model.ErrorCodeUnavailable, "history is disabled")
		return
	}

	conn, err := upgrader.Upgrade(c.ctx.Writer, c.ctx.Request, nil)
	if err != nil {
		log.Warn("StreamMetrics upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := c.deps.History.Subscribe()
	defer cancel()

	// reading is required for control frames; it also reports the close
	closed := make(chan struct{})
	safego.Go(func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	send := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if latest, ok := c.deps.History.Collector().Latest(); ok {
		if err := send(latest); err != nil {
			log.Warn("StreamMetrics write error: %v", err)
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.ctx.Request.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "telemetry stopped"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := send(u); err != nil {
				log.Warn("StreamMetrics write error: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
