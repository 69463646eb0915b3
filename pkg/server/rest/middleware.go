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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/server/middleware"
)

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware logs incoming requests and their response times
func LoggingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := []adapters.Field{
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: c.Request.URL.Path},
			{Key: "status", Value: statusCode},
			{Key: "latency", Value: time.Since(startTime).String()},
			{Key: "client_ip", Value: c.ClientIP()},
		}
		if id := middleware.GetRequestIDFromGinContext(c); id != "" {
			fields = append(fields, adapters.Field{Key: "request_id", Value: id})
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request completed", fields...)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request completed", fields...)
		default:
			logger.Debug(c.Request.Context(), "HTTP request completed", fields...)
		}
	}
}

// ErrorHandlingMiddleware turns panics into a 500 response.
func ErrorHandlingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "Panic recovered", adapters.Field{Key: "panic", Value: err})
				RespondWithError(c, http.StatusInternalServerError, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestSizeLimitMiddleware limits the maximum size of request bodies
func RequestSizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPost {
			if c.Request.ContentLength > maxSize {
				RespondWithError(c, http.StatusRequestEntityTooLarge, "Request entity too large")
				c.Abort()
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

// AuthenticationMiddleware authenticates requests with authenticator and
// stores the principal under "principal".
func AuthenticationMiddleware(authenticator adapters.Authenticator, logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authenticator.AuthenticateHTTP(c.Request.Context(), c.Request)
		if err != nil {
			logger.Warn(c.Request.Context(), "Authentication failed",
				adapters.Field{Key: "error", Value: err.Error()},
				adapters.Field{Key: "path", Value: c.Request.URL.Path},
				adapters.Field{Key: "method", Value: c.Request.Method},
			)
			RespondWithError(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Set("principal", principal)
		c.Next()
	}
}
