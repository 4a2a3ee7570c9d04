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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/web/controller"
	"github.com/deskshell/telemetryd/pkg/web/model"
)

// NewRouter builds a Gin engine with all telemetry routes.
func NewRouter(accessToken string, deps controller.Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(), accessTokenMiddleware(accessToken))

	r.GET("/ping", controller.PingHandler)
	r.GET("/status", func(ctx *gin.Context) {
		controller.NewStatusController(ctx, deps).GetStatus()
	})

	metric := r.Group("/metrics")
	{
		metric.GET("/usage", withMetric(deps, func(c *controller.MetricController) { c.GetUsage() }))
		metric.GET("/processes", withMetric(deps, func(c *controller.MetricController) { c.GetProcesses() }))
		metric.GET("/history", withMetric(deps, func(c *controller.MetricController) { c.GetHistory() }))
		metric.GET("/watch", withMetric(deps, func(c *controller.MetricController) { c.WatchMetrics() }))
		metric.GET("/ws", withMetric(deps, func(c *controller.MetricController) { c.StreamMetrics() }))
	}

	return r
}

func withMetric(deps controller.Deps, fn func(*controller.MetricController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewMetricController(ctx, deps))
	}
}

// accessTokenMiddleware checks the access header. Browsers cannot set
// headers on a WebSocket handshake, so the token query parameter is
// accepted as well.
func accessTokenMiddleware(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" || ctx.Request.URL.Path == "/ping" {
			ctx.Next()
			return
		}

		requestedToken := ctx.GetHeader(model.ApiAccessTokenHeader)
		if requestedToken == "" {
			requestedToken = ctx.Query("token")
		}
		if requestedToken != token {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				Code:    model.ErrorCodeUnauthorized,
				Message: "invalid or missing header " + model.ApiAccessTokenHeader,
			})
			return
		}

		ctx.Next()
	}
}

func logMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log.Info("Requested: %v - %v", ctx.Request.Method, ctx.Request.URL.Path)
		ctx.Next()
	}
}
