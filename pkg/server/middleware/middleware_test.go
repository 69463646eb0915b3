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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestIDFromGinContext(c)+"|"+GetRequestIDFromContext(c.Request.Context()))
	})
	return router
}

func serve(router http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(&RateLimitConfig{RequestsPerSecond: 10, Burst: 20}, nil))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, serve(router, "", nil).Code)
		}
	})

	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(&RateLimitConfig{RequestsPerSecond: 1, Burst: 2}, nil))
		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, serve(router, "", nil).Code)
		}
		w := serve(router, "", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Burst"))
		assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	})

	t.Run("per-IP limits are independent", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(&RateLimitConfig{RequestsPerSecond: 1, Burst: 1, PerIP: true}, nil))
		assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1234", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(router, "10.0.0.1:1234", nil).Code)
		assert.Equal(t, http.StatusOK, serve(router, "10.0.0.2:1234", nil).Code)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newRouter(RequestIDMiddleware())

	t.Run("generates a UUID", func(t *testing.T) {
		w := serve(router, "", nil)
		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id+"|"+id, w.Body.String())
	})

	t.Run("propagates caller id", func(t *testing.T) {
		w := serve(router, "", map[string]string{RequestIDHeader: "trace-42"})
		assert.Equal(t, "trace-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "trace-42|trace-42", w.Body.String())
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		w := serve(router, "", map[string]string{RequestIDHeader: strings.Repeat("x", 500)})
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := serve(newRouter(SecurityHeadersMiddleware(nil)), "", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))

	w = serve(newRouter(SecurityHeadersMiddleware(&SecurityHeadersConfig{XFrameOptions: "SAMEORIGIN"})), "", nil)
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}
