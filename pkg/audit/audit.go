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

// Package audit records who used the carwatch REST API and what they did.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
)

// EventType represents the type of audit event
type EventType string

const (
	// EventAuthFailure indicates an authentication failure
	EventAuthFailure EventType = "AUTH_FAILURE"

	// EventCycleTriggered indicates a cycle was run on demand
	EventCycleTriggered EventType = "CYCLE_TRIGGERED"

	// EventSnapshotAccessed indicates a stored snapshot was read
	EventSnapshotAccessed EventType = "SNAPSHOT_ACCESSED"

	// EventSnapshotsListed indicates the snapshot list was read
	EventSnapshotsListed EventType = "SNAPSHOTS_LISTED"

	// EventDiffRequested indicates two snapshots were compared
	EventDiffRequested EventType = "DIFF_REQUESTED"

	// EventOther covers any other audited request
	EventOther EventType = "OTHER"
)

// Result represents the outcome of an audited operation
type Result string

const (
	// ResultSuccess indicates the operation succeeded
	ResultSuccess Result = "SUCCESS"

	// ResultFailure indicates the operation failed
	ResultFailure Result = "FAILURE"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	EventType    EventType      `json:"event_type"`
	PrincipalID  string         `json:"principal_id,omitempty"`
	Principal    string         `json:"principal,omitempty"`
	Resource     string         `json:"resource,omitempty"`
	Action       string         `json:"action"`
	Result       Result         `json:"result"`
	ErrorMessage string         `json:"error_message,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Method       string         `json:"method,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogEvent logs a generic audit event
	LogEvent(ctx context.Context, event *AuditEvent) error

	// LogAuthFailure logs authentication failures
	LogAuthFailure(ctx context.Context, ipAddress, requestID, reason string) error
}

// OutputFormat specifies the format for audit log output
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds configuration for the audit logger
type Config struct {
	// Enabled determines if audit logging is active
	Enabled bool

	// Format specifies the output format (JSON or text)
	Format OutputFormat

	// Output specifies where to write events (defaults to stderr)
	Output io.Writer

	// IncludeMetadata determines if extra metadata should be logged
	IncludeMetadata bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Format:          FormatJSON,
		Output:          os.Stderr,
		IncludeMetadata: true,
	}
}

// DefaultAuditLogger implements AuditLogger using slog
type DefaultAuditLogger struct {
	config *Config
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger with the specified configuration
func NewAuditLogger(config *Config) AuditLogger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if config.Format == FormatText {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &DefaultAuditLogger{
		config: config,
		logger: slog.New(handler),
	}
}

// LogEvent logs a generic audit event
func (a *DefaultAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) error {
	if !a.config.Enabled || event == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", event.Timestamp),
		slog.String("event_type", string(event.EventType)),
		slog.String("action", event.Action),
		slog.String("result", string(event.Result)),
	}
	str := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	str("principal_id", event.PrincipalID)
	str("principal", event.Principal)
	str("resource", event.Resource)
	str("error", event.ErrorMessage)
	str("ip_address", event.IPAddress)
	str("request_id", event.RequestID)
	str("method", event.Method)
	if event.StatusCode > 0 {
		attrs = append(attrs, slog.Int("status_code", event.StatusCode))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if a.config.IncludeMetadata && len(event.Metadata) > 0 {
		metadataJSON, _ := json.Marshal(event.Metadata) //nolint:errcheck // marshaling simple map types is safe
		attrs = append(attrs, slog.String("metadata", string(metadataJSON)))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "Audit event: "+event.Action, attrs...)
	return nil
}

// LogAuthFailure logs authentication failures
func (a *DefaultAuditLogger) LogAuthFailure(ctx context.Context, ipAddress, requestID, reason string) error {
	return a.LogEvent(ctx, &AuditEvent{
		Timestamp:    time.Now(),
		EventType:    EventAuthFailure,
		Action:       "authenticate",
		Result:       ResultFailure,
		ErrorMessage: reason,
		IPAddress:    ipAddress,
		RequestID:    requestID,
	})
}

// NoOpAuditLogger is an audit logger that discards all events
type NoOpAuditLogger struct{}

// NewNoOpAuditLogger creates a new no-op audit logger
func NewNoOpAuditLogger() AuditLogger {
	return &NoOpAuditLogger{}
}

func (n *NoOpAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) error { return nil }

func (n *NoOpAuditLogger) LogAuthFailure(ctx context.Context, ipAddress, requestID, reason string) error {
	return nil
}

// principalOf extracts the authenticated principal stored by the
// authentication middleware.
func principalOf(value any) (*adapters.Principal, bool) {
	switch p := value.(type) {
	case *adapters.Principal:
		return p, p != nil
	case adapters.Principal:
		return &p, true
	default:
		return nil, false
	}
}
