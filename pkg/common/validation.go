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

package common

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the maximum allowed length for object keys
	MaxKeyLength = 1024

	// MaxMetadataEntries is the maximum number of custom metadata entries
	MaxMetadataEntries = 32

	// MaxMetadataValueLength is the maximum allowed length for metadata values
	MaxMetadataValueLength = 2048
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidateKey rejects keys that are empty, too long, absolute, not UTF-8,
// contain control characters or backslashes, or traverse out of the
// backend namespace.
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "key", Message: "key cannot be empty"}
	}
	if len(key) > MaxKeyLength {
		return &ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("key length exceeds maximum of %d bytes", MaxKeyLength),
		}
	}
	if !utf8.ValidString(key) {
		return &ValidationError{Field: "key", Message: "key must be valid UTF-8"}
	}
	if strings.ContainsAny(key, "\x00\n\r\t") {
		return &ValidationError{Field: "key", Message: "key contains control characters"}
	}
	if strings.Contains(key, `\`) {
		return &ValidationError{Field: "key", Message: "key cannot contain backslashes"}
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") || (len(key) >= 2 && key[1] == ':') {
		return &ValidationError{Field: "key", Message: "key cannot be an absolute path"}
	}
	if strings.Contains(key, "//") {
		return &ValidationError{Field: "key", Message: `key contains invalid character sequence: "//"`}
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return &ValidationError{Field: "key", Message: "key cannot contain path traversal sequences (..)"}
		}
	}
	return nil
}

// ValidateMetadata validates custom metadata for size and encoding.
func ValidateMetadata(custom map[string]string) error {
	if len(custom) > MaxMetadataEntries {
		return &ValidationError{
			Field:   "metadata",
			Message: fmt.Sprintf("metadata cannot have more than %d entries", MaxMetadataEntries),
		}
	}
	for key, value := range custom {
		if key == "" {
			return &ValidationError{Field: "metadata.key", Message: "metadata key cannot be empty"}
		}
		if len(value) > MaxMetadataValueLength {
			return &ValidationError{
				Field:   "metadata.value",
				Message: fmt.Sprintf("metadata value for key '%s' exceeds maximum length of %d bytes", key, MaxMetadataValueLength),
			}
		}
		if !utf8.ValidString(key) || !utf8.ValidString(value) {
			return &ValidationError{Field: "metadata", Message: "metadata must be valid UTF-8"}
		}
	}
	return nil
}

// SanitizeErrorMessage removes internal details such as filesystem paths
// from errors before they are returned to API clients.
func SanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	if errors.Is(err, ErrKeyNotFound) {
		return "object not found"
	}

	msg := err.Error()
	if strings.Contains(msg, "/") || strings.Contains(msg, `\`) {
		if strings.Contains(msg, "permission denied") {
			return "access denied"
		}
		if strings.Contains(msg, "no such file or directory") {
			return "object not found"
		}
		return "internal storage error"
	}
	return msg
}
