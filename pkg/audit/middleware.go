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

package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/carwatch/pkg/server/middleware"
)

// AuditMiddleware creates a Gin middleware that records one event per API
// request. Health and metrics probes are not audited.
func AuditMiddleware(auditLogger AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !shouldAuditRequest(path) {
			return
		}

		statusCode := c.Writer.Status()
		requestID := middleware.GetRequestIDFromGinContext(c)
		if statusCode == http.StatusUnauthorized {
			_ = auditLogger.LogAuthFailure(c.Request.Context(), c.ClientIP(), requestID, "unauthorized "+c.Request.Method+" "+path) // #nosec G104 -- audit failures must not block requests
			return
		}

		event := &AuditEvent{
			Timestamp:  startTime,
			EventType:  determineEventType(c.Request.Method, path),
			Resource:   c.Param("id"),
			Action:     c.Request.Method + " " + path,
			Result:     ResultSuccess,
			IPAddress:  c.ClientIP(),
			RequestID:  requestID,
			Method:     c.Request.Method,
			StatusCode: statusCode,
			Duration:   time.Since(startTime),
		}
		if value, exists := c.Get("principal"); exists {
			if p, ok := principalOf(value); ok {
				event.PrincipalID = p.ID
				event.Principal = p.Name
			}
		}
		if statusCode >= 400 {
			event.Result = ResultFailure
			if len(c.Errors) > 0 {
				event.ErrorMessage = c.Errors.Last().Error()
			}
		}
		if from, to := c.Query("from"), c.Query("to"); from != "" || to != "" {
			event.Metadata = map[string]any{"from": from, "to": to}
		}

		_ = auditLogger.LogEvent(c.Request.Context(), event) // #nosec G104 -- audit failures must not block requests
	}
}

func determineEventType(method, path string) EventType {
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/cycles"):
		return EventCycleTriggered
	case strings.HasSuffix(path, "/snapshots/:id"):
		return EventSnapshotAccessed
	case strings.HasSuffix(path, "/snapshots"):
		return EventSnapshotsListed
	case strings.HasSuffix(path, "/diff"):
		return EventDiffRequested
	default:
		return EventOther
	}
}

func shouldAuditRequest(path string) bool {
	return path != "/health" && path != "/metrics"
}
