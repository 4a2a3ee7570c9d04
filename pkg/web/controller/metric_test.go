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
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usage "github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/telemetry"
	"github.com/deskshell/telemetryd/pkg/web/model"
)

func sampleUsage(cpu float64) usage.ResourceUsage {
	return usage.ResourceUsage{
		CPU:       cpu,
		Memory:    usage.MemoryUsage{Used: 4, Total: 16, Percent: 25},
		Disk:      usage.DiskUsage{Used: 50, Total: 100, Percent: 50},
		Timestamp: time.Now().UnixMilli(),
	}
}

func setupMetricController(method, path string, deps Deps) (*MetricController, *httptest.ResponseRecorder) {
	ctx, w := newTestContext(method, path, nil)
	ctrl := NewMetricController(ctx, deps)
	return ctrl, w
}

func TestGetUsageEndpoint(t *testing.T) {
	fake := &fakeTelemetry{usage: sampleUsage(42)}
	ctrl, w := setupMetricController(http.MethodGet, "/metrics/usage", Deps{Telemetry: fake})

	ctrl.GetUsage()

	assert.Equal(t, http.StatusOK, w.Code)
	var got usage.ResourceUsage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 42.0, got.CPU)
	assert.Equal(t, 25, got.Memory.Percent)
	assert.Nil(t, got.GPU)
}

func TestGetProcessesEndpoint(t *testing.T) {
	fake := &fakeTelemetry{processes: []usage.ProcessInfo{
		{PID: 1, Name: "a", CPU: 10},
		{PID: 2, Name: "b", CPU: 5},
		{PID: 3, Name: "c", CPU: 1},
	}}

	ctrl, w := setupMetricController(http.MethodGet, "/metrics/processes?limit=2", Deps{Telemetry: fake})
	ctrl.GetProcesses()

	assert.Equal(t, http.StatusOK, w.Code)
	var got []usage.ProcessInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	ctrl, w = setupMetricController(http.MethodGet, "/metrics/processes", Deps{Telemetry: fake})
	ctrl.GetProcesses()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{2, model.DefaultProcessLimit}, fake.seenLimits())
}

func TestGetProcessesRejectsBadLimit(t *testing.T) {
	for _, query := range []string{"limit=-3", "limit=abc", "limit=1000"} {
		fake := &fakeTelemetry{}
		ctrl, w := setupMetricController(http.MethodGet, "/metrics/processes?"+query, Deps{Telemetry: fake})

		ctrl.GetProcesses()

		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, model.ErrorCodeInvalidRequest, resp.Code)
		assert.Empty(t, fake.seenLimits(), query)
	}
}

func TestGetHistoryEndpoint(t *testing.T) {
	hist := newFakeHistory()
	hist.collector.Add(sampleUsage(10))
	hist.collector.Add(sampleUsage(30))

	ctrl, w := setupMetricController(http.MethodGet, "/metrics/history?since=1m", Deps{History: hist})
	ctrl.GetHistory()

	assert.Equal(t, http.StatusOK, w.Code)
	var resp model.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1m", resp.Since)
	assert.Len(t, resp.Samples, 2)
	assert.Equal(t, 2, resp.Summary.Samples)
	assert.Equal(t, 20.0, resp.Summary.AvgCPU)
	assert.Equal(t, 30.0, resp.Summary.PeakCPU)
}

func TestGetHistoryDefaultsWindow(t *testing.T) {
	ctrl, w := setupMetricController(http.MethodGet, "/metrics/history", Deps{History: newFakeHistory()})

	ctrl.GetHistory()

	assert.Equal(t, http.StatusOK, w.Code)
	var resp model.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.DefaultHistoryWindow, resp.Since)
	assert.NotNil(t, resp.Samples)
	assert.Empty(t, resp.Samples)
}

func TestGetHistoryRejectsBadWindow(t *testing.T) {
	for _, since := range []string{"soon", "-5m", "0s"} {
		ctrl, w := setupMetricController(http.MethodGet, "/metrics/history?since="+since, Deps{History: newFakeHistory()})

		ctrl.GetHistory()

		assert.Equal(t, http.StatusBadRequest, w.Code, since)
	}
}

func TestHistoryDisabled(t *testing.T) {
	ctrl, w := setupMetricController(http.MethodGet, "/metrics/history", Deps{Telemetry: &fakeTelemetry{}})
	ctrl.GetHistory()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ctrl, w = setupMetricController(http.MethodGet, "/metrics/watch", Deps{Telemetry: &fakeTelemetry{}})
	ctrl.WatchMetrics()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestWatchMetricsHeaders verifies SSE header defaults.
func TestWatchMetricsHeaders(t *testing.T) {
	ctrl, w := setupMetricController(http.MethodGet, "/metrics/watch", Deps{})

	ctrl.setupSSEResponse()

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
}

func newStreamServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/watch", func(ctx *gin.Context) { NewMetricController(ctx, deps).WatchMetrics() })
	engine.GET("/ws", func(ctx *gin.Context) { NewMetricController(ctx, deps).StreamMetrics() })
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func readFrame(t *testing.T, r *bufio.Reader) usage.ResourceUsage {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), "unexpected frame %q", line)

	var u usage.ResourceUsage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &u))

	blank, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "\n", blank)
	return u
}

func TestWatchMetricsStreamsSamples(t *testing.T) {
	hist := newFakeHistory()
	hist.collector.Add(sampleUsage(11))
	srv := newStreamServer(t, Deps{History: hist})

	resp, err := http.Get(srv.URL + "/watch")
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	assert.Equal(t, 11.0, readFrame(t, reader).CPU)

	hist.updates <- sampleUsage(22)
	assert.Equal(t, 22.0, readFrame(t, reader).CPU)

	require.NoError(t, resp.Body.Close())
	assert.Eventually(t, hist.isCancelled, 2*time.Second, 10*time.Millisecond)
}

func TestWatchMetricsEndsWhenHistoryStops(t *testing.T) {
	hist := newFakeHistory()
	srv := newStreamServer(t, Deps{History: hist})

	resp, err := http.Get(srv.URL + "/watch")
	require.NoError(t, err)
	defer resp.Body.Close()

	close(hist.updates)

	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	assert.Error(t, err)
	assert.Eventually(t, hist.isCancelled, 2*time.Second, 10*time.Millisecond)
}

func TestStreamMetricsWebSocket(t *testing.T) {
	hist := newFakeHistory()
	hist.collector.Add(sampleUsage(7))
	srv := newStreamServer(t, Deps{History: hist})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got usage.ResourceUsage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 7.0, got.CPU)

	hist.updates <- sampleUsage(8)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 8.0, got.CPU)

	require.NoError(t, conn.Close())
	assert.Eventually(t, hist.isCancelled, 2*time.Second, 10*time.Millisecond)
}

func TestGetStatus(t *testing.T) {
	hist := newFakeHistory()
	hist.collector.Add(sampleUsage(1))
	deps := Deps{
		Telemetry: &fakeTelemetry{state: telemetry.StateReady, pending: 3},
		History:   hist,
	}
	ctx, w := newTestContext(http.MethodGet, "/status", nil)

	NewStatusController(ctx, deps).GetStatus()

	assert.Equal(t, http.StatusOK, w.Code)
	var resp model.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusResponse{State: "ready", Pending: 3, Samples: 1}, resp)
}
