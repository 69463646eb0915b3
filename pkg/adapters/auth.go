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

package adapters

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when required credentials are missing.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidLogLevel is returned for an unknown log-level setting.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat is returned for an unknown log-format setting.
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Principal represents an authenticated caller.
type Principal struct {
	ID   string
	Name string
	Type string
}

// Authenticator authenticates HTTP requests to the carwatch API.
type Authenticator interface {
	// AuthenticateHTTP returns the authenticated principal or
	// ErrUnauthorized / ErrMissingCredentials / ErrInvalidCredentials.
	AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error)
}

// NoOpAuthenticator accepts every request as an anonymous principal.
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator creates a new no-op authenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

// AuthenticateHTTP always succeeds.
func (a *NoOpAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	return &Principal{ID: "anonymous", Name: "anonymous", Type: "anonymous"}, nil
}

// BearerTokenAuthenticator checks the Authorization header against a
// static API token.
type BearerTokenAuthenticator struct {
	token string
}

// NewBearerTokenAuthenticator creates an authenticator for the given token.
func NewBearerTokenAuthenticator(token string) *BearerTokenAuthenticator {
	return &BearerTokenAuthenticator{token: token}
}

// AuthenticateHTTP validates "Authorization: Bearer <token>".
func (a *BearerTokenAuthenticator) AuthenticateHTTP(ctx context.Context, req *http.Request) (*Principal, error) {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return nil, ErrMissingCredentials
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Principal{ID: "api-token", Name: "api-token", Type: "service"}, nil
}
