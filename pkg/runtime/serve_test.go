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

package runtime

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/protocol"
)

func decodeAll(t *testing.T, out *bytes.Buffer) []*protocol.Response {
	t.Helper()
	dec := protocol.NewDecoder(out)
	var all []*protocol.Response
	for {
		resp, err := dec.DecodeResponse()
		if err == io.EOF {
			return all
		}
		require.NoError(t, err)
		all = append(all, resp)
	}
}

func TestServeAnswersRequests(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"id":"s-1-1","action":"getUsage"}`,
		`{"id":"s-2-1","action":"getProcesses","params":{"limit":2}}`,
		`{"id":"s-3-1","action":"reboot"}`,
	}, "\n") + "\n")
	var out bytes.Buffer

	err := Serve(context.Background(), in, &out, NewHandler(&stubSampler{cpu: 33}))
	require.NoError(t, err)

	all := decodeAll(t, &out)
	require.Len(t, all, 4)
	assert.True(t, all[0].IsReady())

	byID := make(map[string]*protocol.Response)
	for _, resp := range all[1:] {
		byID[resp.ID] = resp
	}

	usage := byID["s-1-1"]
	require.NotNil(t, usage)
	require.True(t, usage.Success)
	var u model.ResourceUsage
	require.NoError(t, protocol.Unmarshal(usage.Data, &u))
	assert.Equal(t, 33.0, u.CPU)

	procs := byID["s-2-1"]
	require.NotNil(t, procs)
	var list []model.ProcessInfo
	require.NoError(t, protocol.Unmarshal(procs.Data, &list))
	assert.Len(t, list, 2)

	unknown := byID["s-3-1"]
	require.NotNil(t, unknown)
	assert.False(t, unknown.Success)
	assert.Contains(t, unknown.Error, "reboot")
}

func TestServeRejectsMalformedRequest(t *testing.T) {
	in := strings.NewReader("{oops\n" + `{"id":"m-1","action":7}` + "\n")
	var out bytes.Buffer

	require.NoError(t, Serve(context.Background(), in, &out, NewHandler(&stubSampler{})))

	all := decodeAll(t, &out)
	require.Len(t, all, 3)
	assert.False(t, all[1].Success)
	assert.False(t, all[2].Success)
	assert.Equal(t, "m-1", all[2].ID)
}

func TestServeReportsHandlerPanic(t *testing.T) {
	in := strings.NewReader(`{"id":"p-1","action":"getUsage"}` + "\n")
	var out bytes.Buffer

	err := Serve(context.Background(), in, &out, NewHandler(&stubSampler{panicUsage: true}))
	assert.ErrorIs(t, err, ErrWorkerPanic)
}

func TestServeStopsOnContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.NoError(t, Serve(ctx, pr, &out, NewHandler(&stubSampler{})))
}

func TestHandlerUnknownAction(t *testing.T) {
	h := NewHandler(&stubSampler{})
	resp := h.Handle(context.Background(), &protocol.Request{ID: "x", Action: "flush"})
	assert.Equal(t, "x", resp.ID)
	assert.False(t, resp.Success)
}
