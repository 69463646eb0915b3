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

// Package middleware provides gin middleware for the carwatch REST API.
package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerSecond is the number of requests allowed per second
	RequestsPerSecond float64

	// Burst is the maximum burst size
	Burst int

	// PerIP enables per-IP rate limiting (default: false = global rate limit)
	PerIP bool
}

// DefaultRateLimitConfig returns a rate limit config with sensible defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		PerIP:             true,
	}
}

// rateLimiter manages rate limiting state
type rateLimiter struct {
	config  *RateLimitConfig
	global  *rate.Limiter
	clients map[string]*rate.Limiter
	mu      sync.Mutex
}

func newRateLimiter(config *RateLimitConfig) *rateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	rl := &rateLimiter{
		config:  config,
		clients: make(map[string]*rate.Limiter),
	}
	if !config.PerIP {
		rl.global = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return rl
}

// getLimiter returns the limiter for clientIP, creating it on first use.
func (rl *rateLimiter) getLimiter(clientIP string) *rate.Limiter {
	if !rl.config.PerIP {
		return rl.global
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.clients[clientIP]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.clients[clientIP] = limiter
	}
	return limiter
}

// RateLimitMiddleware rejects requests above the configured rate with 429.
func RateLimitMiddleware(config *RateLimitConfig, logger adapters.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	limiter := newRateLimiter(config)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !limiter.getLimiter(clientIP).Allow() {
			logger.Warn(c.Request.Context(), "Rate limit exceeded",
				adapters.Field{Key: "client_ip", Value: clientIP},
				adapters.Field{Key: "path", Value: c.Request.URL.Path},
				adapters.Field{Key: "method", Value: c.Request.Method},
			)

			c.Header("X-RateLimit-Limit", fmt.Sprintf("%.0f", limiter.config.RequestsPerSecond))
			c.Header("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.config.Burst))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
