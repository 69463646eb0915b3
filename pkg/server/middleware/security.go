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

import "github.com/gin-gonic/gin"

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	// ContentSecurityPolicy sets the CSP header (default: "default-src 'none'")
	ContentSecurityPolicy string

	// XFrameOptions sets the X-Frame-Options header (default: "DENY")
	XFrameOptions string

	// XContentTypeOptions sets the X-Content-Type-Options header (default: "nosniff")
	XContentTypeOptions string

	// ReferrerPolicy sets the Referrer-Policy header (default: "no-referrer")
	ReferrerPolicy string
}

// DefaultSecurityHeadersConfig returns security headers for a JSON-only API.
func DefaultSecurityHeadersConfig() *SecurityHeadersConfig {
	return &SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'none'",
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecurityHeadersMiddleware sets the configured security headers on every
// response. Empty values are skipped.
func SecurityHeadersMiddleware(config *SecurityHeadersConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSecurityHeadersConfig()
	}
	headers := map[string]string{
		"Content-Security-Policy": config.ContentSecurityPolicy,
		"X-Frame-Options":         config.XFrameOptions,
		"X-Content-Type-Options":  config.XContentTypeOptions,
		"Referrer-Policy":         config.ReferrerPolicy,
	}

	return func(c *gin.Context) {
		for name, value := range headers {
			if value != "" {
				c.Header(name, value)
			}
		}
		c.Next()
	}
}
