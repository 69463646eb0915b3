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

package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDHeader is the header name for request IDs
	RequestIDHeader = "X-Request-ID"

	// RequestIDContextKey is the context key for storing request IDs
	RequestIDContextKey contextKey = "request_id"

	maxRequestIDLength = 128
)

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a
// new UUID, and exposes it on the response and the request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		c.Set(string(RequestIDContextKey), requestID)
		c.Header(RequestIDHeader, requestID)
		ctx := context.WithValue(c.Request.Context(), RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestIDFromGinContext retrieves the request ID from a Gin context
func GetRequestIDFromGinContext(c *gin.Context) string {
	return c.GetString(string(RequestIDContextKey))
}

// GetRequestIDFromContext retrieves the request ID from a standard context
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}
