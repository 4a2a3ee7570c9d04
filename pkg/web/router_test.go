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

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskshell/telemetryd/pkg/history"
	usage "github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/telemetry"
	"github.com/deskshell/telemetryd/pkg/web/controller"
	"github.com/deskshell/telemetryd/pkg/web/model"
)

type staticTelemetry struct{}

func (staticTelemetry) GetUsage(context.Context) usage.ResourceUsage {
	return usage.ResourceUsage{CPU: 12, Timestamp: 1}
}

func (staticTelemetry) GetProcesses(context.Context, int) []usage.ProcessInfo {
	return []usage.ProcessInfo{}
}

func (staticTelemetry) State() telemetry.State { return telemetry.StateReady }

func (staticTelemetry) Pending() int { return 0 }

type staticHistory struct{ collector *history.Collector }

func (h staticHistory) Collector() *history.Collector { return h.collector }

func (h staticHistory) Subscribe() (<-chan usage.ResourceUsage, func()) {
	ch := make(chan usage.ResourceUsage)
	close(ch)
	return ch, func() {}
}

func testDeps() controller.Deps {
	return controller.Deps{
		Telemetry: staticTelemetry{},
		History:   staticHistory{collector: history.NewCollector(4)},
	}
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterRoutes(t *testing.T) {
	r := NewRouter("", testDeps())

	for _, path := range []string{"/ping", "/status", "/metrics/usage", "/metrics/processes", "/metrics/history"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRequiresAccessToken(t *testing.T) {
	r := NewRouter("secret", testDeps())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrorCodeUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics/usage", nil)
	req.Header.Set(model.ApiAccessTokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics/usage", nil)
	req.Header.Set(model.ApiAccessTokenHeader, "secret")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var got usage.ResourceUsage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 12.0, got.CPU)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics/usage?token=secret", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterPingSkipsAccessToken(t *testing.T) {
	r := NewRouter("secret", testDeps())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
