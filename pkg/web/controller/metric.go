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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deskshell/telemetryd/pkg/web/model"
)

// MetricController serves usage, processes and history.
type MetricController struct {
	*basicController
	deps Deps
}

func NewMetricController(ctx *gin.Context, deps Deps) *MetricController {
	return &MetricController{basicController: newBasicController(ctx), deps: deps}
}

// GetUsage returns the current resource usage.
func (c *MetricController) GetUsage() {
	c.RespondSuccess(c.deps.Telemetry.GetUsage(c.ctx.Request.Context()))
}

// GetProcesses returns the top processes, 10 unless ?limit= says otherwise.
func (c *MetricController) GetProcesses() {
	var query model.ProcessesQuery
	if err := c.ctx.ShouldBindQuery(&query); err != nil {
		c.RespondError(
			http.StatusBadRequest,
			model.ErrorCodeInvalidRequest,
			fmt.Sprintf("invalid limit: %v", err),
		)
		return
	}
	if query.Limit == 0 {
		query.Limit = model.DefaultProcessLimit
	}

	c.RespondSuccess(c.deps.Telemetry.GetProcesses(c.ctx.Request.Context(), query.Limit))
}

// GetHistory returns the samples recorded within ?since= (default 5m).
func (c *MetricController) GetHistory() {
	if c.deps.History == nil {
		c.RespondError(http.StatusServiceUnavailable, model.ErrorCodeUnavailable, "history is disabled")
		return
	}

	var query model.HistoryQuery
	_ = c.ctx.ShouldBindQuery(&query)
	if query.Since == "" {
		query.Since = model.DefaultHistoryWindow
	}
	since, err := time.ParseDuration(query.Since)
	if err != nil || since <= 0 {
		c.RespondError(
			http.StatusBadRequest,
			model.ErrorCodeInvalidRequest,
			fmt.Sprintf("invalid since %q: expected a positive duration such as 5m", query.Since),
		)
		return
	}

	collector := c.deps.History.Collector()
	c.RespondSuccess(model.HistoryResponse{
		Since:   query.Since,
		Samples: collector.Since(since),
		Summary: collector.Summarize(since),
	})
}
