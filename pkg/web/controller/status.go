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
	"github.com/gin-gonic/gin"

	"github.com/deskshell/telemetryd/pkg/web/model"
)

// StatusController reports the telemetry client state.
type StatusController struct {
	*basicController
	deps Deps
}

func NewStatusController(ctx *gin.Context, deps Deps) *StatusController {
	return &StatusController{basicController: newBasicController(ctx), deps: deps}
}

func (c *StatusController) GetStatus() {
	resp := model.StatusResponse{
		State:   c.deps.Telemetry.State().String(),
		Pending: c.deps.Telemetry.Pending(),
	}
	if c.deps.History != nil {
		resp.Samples = c.deps.History.Collector().Len()
	}
	c.RespondSuccess(resp)
}
