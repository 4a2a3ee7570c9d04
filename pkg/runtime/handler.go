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
	"context"
	"fmt"

	"github.com/deskshell/telemetryd/pkg/model"
	"github.com/deskshell/telemetryd/pkg/protocol"
)

// Sampler is what a worker needs from sampler.Sampler.
type Sampler interface {
	Usage(ctx context.Context) model.ResourceUsage
	Processes(ctx context.Context, limit int) []model.ProcessInfo
}

// Handler maps protocol actions onto a Sampler.
type Handler struct {
	sampler Sampler
}

func NewHandler(s Sampler) *Handler {
	return &Handler{sampler: s}
}

// Handle answers one request. Unknown actions are business errors.
func (h *Handler) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Action {
	case protocol.ActionGetUsage:
		return protocol.Success(req.ID, h.sampler.Usage(ctx))
	case protocol.ActionGetProcesses:
		return protocol.Success(req.ID, h.sampler.Processes(ctx, req.Limit()))
	default:
		return protocol.Failure(req.ID, fmt.Sprintf("unknown action: %q", req.Action))
	}
}
