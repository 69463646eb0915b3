// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/carwatch/pkg/server"
)

// SetupRoutes configures all routes for the REST API. auth guards the
// state-changing routes; metrics, when non-nil, is served at /metrics.
func SetupRoutes(router *gin.Engine, handler *Handler, auth gin.HandlerFunc, metrics http.Handler) {
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/snapshots", handler.ListSnapshots)
		v1.GET("/snapshots/:id", handler.GetSnapshot)
		v1.GET("/diff", handler.Diff)

		cycles := v1.Group("/cycles")
		if auth != nil {
			cycles.Use(auth)
		}
		cycles.POST("", handler.TriggerCycle)
	}
}

func parseLimit(s string) (int, bool) {
	if s == "" {
		return server.MaxListLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	if n == 0 || n > server.MaxListLimit {
		n = server.MaxListLimit
	}
	return n, true
}
