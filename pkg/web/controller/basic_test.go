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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskshell/telemetryd/pkg/web/model"
)

func setupBasicController(path string) (*basicController, *httptest.ResponseRecorder) {
	ctx, w := newTestContext(http.MethodGet, path, nil)
	return newBasicController(ctx), w
}

func TestRespondSuccessWritesPayload(t *testing.T) {
	ctrl, w := setupBasicController("/status")

	ctrl.RespondSuccess(model.StatusResponse{State: "ready", Pending: 2, Samples: 5})

	assert.Equal(t, http.StatusOK, w.Code)
	var got model.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ready", got.State)
	assert.Equal(t, 2, got.Pending)
	assert.Equal(t, 5, got.Samples)
}

func TestRespondSuccessWithoutPayload(t *testing.T) {
	ctrl, w := setupBasicController("/")

	ctrl.RespondSuccess(nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestRespondErrorAddsCodeAndMessage(t *testing.T) {
	ctrl, w := setupBasicController("/metrics/history")

	ctrl.RespondError(http.StatusServiceUnavailable, model.ErrorCodeUnavailable, "history is disabled")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var got model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.ErrorCodeUnavailable, got.Code)
	assert.Equal(t, "history is disabled", got.Message)
}

func TestRespondErrorWithoutMessage(t *testing.T) {
	ctrl, w := setupBasicController("/")

	ctrl.RespondError(http.StatusUnauthorized, model.ErrorCodeUnauthorized)

	var got model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.ErrorCodeUnauthorized, got.Code)
	assert.Empty(t, got.Message)
}

func TestPingHandler(t *testing.T) {
	ctx, w := newTestContext(http.MethodGet, "/ping", nil)

	PingHandler(ctx)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
